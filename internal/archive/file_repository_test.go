package archive_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/archive"
)

func sampleRecord(stationID int, saveDate string) *archive.Record {
	return &archive.Record{
		StationID:   stationID,
		StationName: "Poznań - Polanka",
		CityName:    "Poznań",
		Address:     "ul. Polanka",
		Latitude:    52.4201,
		Longitude:   16.9692,
		SaveDate:    saveDate,
		Sensors: []archive.SensorRecord{
			{
				SensorID:  642,
				ParamName: "dwutlenek azotu",
				Measurements: []airquality.Measurement{
					{Date: "2024-05-01 12:00:00", Value: nil},
					{Date: "2024-05-01 11:00:00", Value: airquality.Float(17.2)},
				},
			},
			{SensorID: 644, ParamName: "ozon", Measurements: []airquality.Measurement{}},
		},
	}
}

func TestFileName(t *testing.T) {
	name, err := archive.FileName(114, "2024-05-01T12:30:05Z")
	require.NoError(t, err)
	assert.Equal(t, "station_114_20240501_123005.json", name)

	_, err = archive.FileName(114, "yesterday")
	assert.Error(t, err)
}

func TestFileRepository_CreateAndGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	repo := archive.NewFileRepository(dir, zerolog.Nop())
	ctx := context.Background()

	rec := sampleRecord(5, "2024-05-01T12:30:05Z")
	require.NoError(t, repo.Create(ctx, rec))

	_, err := os.Stat(filepath.Join(dir, "station_5_20240501_123005.json"))
	require.NoError(t, err)

	got, err := repo.Get(ctx, 5, "2024-05-01T12:30:05Z")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Nil(t, got.Sensors[0].Measurements[0].Value, "null readings survive a round trip")
}

func TestFileRepository_NeverOverwrites(t *testing.T) {
	repo := archive.NewFileRepository(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	first := sampleRecord(5, "2024-05-01T12:30:05Z")
	require.NoError(t, repo.Create(ctx, first))

	second := sampleRecord(5, "2024-05-01T12:30:05Z")
	second.CityName = "Other"
	err := repo.Create(ctx, second)
	assert.ErrorIs(t, err, archive.ErrRecordExists)

	got, err := repo.Get(ctx, 5, "2024-05-01T12:30:05Z")
	require.NoError(t, err)
	assert.Equal(t, "Poznań", got.CityName)
}

func TestFileRepository_ConcurrentSameKey(t *testing.T) {
	repo := archive.NewFileRepository(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Create(ctx, sampleRecord(5, "2024-05-01T12:30:05Z"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, archive.ErrRecordExists)
	}
	assert.Equal(t, 1, succeeded)
}

func TestFileRepository_GetNotFound(t *testing.T) {
	repo := archive.NewFileRepository(t.TempDir(), zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, sampleRecord(5, "2024-05-01T12:30:05Z")))

	_, err := repo.Get(ctx, 5, "2024-05-01T12:30:06Z")
	assert.ErrorIs(t, err, archive.ErrRecordNotFound)

	_, err = repo.Get(ctx, 6, "2024-05-01T12:30:05Z")
	assert.ErrorIs(t, err, archive.ErrRecordNotFound)
}

func TestFileRepository_ListMissingDir(t *testing.T) {
	repo := archive.NewFileRepository(filepath.Join(t.TempDir(), "absent"), zerolog.Nop())

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFileRepository_ListSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	repo := archive.NewFileRepository(dir, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleRecord(7, "2024-05-02T08:00:00Z")))
	require.NoError(t, repo.Create(ctx, sampleRecord(5, "2024-05-01T12:30:05Z")))
	require.NoError(t, repo.Create(ctx, sampleRecord(5, "2024-05-01T09:00:00Z")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "station_9_20240101_000000.json"), []byte("{broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "station_8_20240101_000000.json"), []byte(`{"cityName":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, 5, list[0].StationID)
	assert.Equal(t, "2024-05-01T09:00:00Z", list[0].SaveDate)
	assert.Equal(t, 5, list[1].StationID)
	assert.Equal(t, "2024-05-01T12:30:05Z", list[1].SaveDate)
	assert.Equal(t, 7, list[2].StationID)
	assert.Equal(t, "Poznań", list[2].CityName)
}

func TestFileRepository_CreateRejectsBadSaveDate(t *testing.T) {
	repo := archive.NewFileRepository(t.TempDir(), zerolog.Nop())

	err := repo.Create(context.Background(), sampleRecord(5, "not-a-date"))
	assert.ErrorIs(t, err, archive.ErrPersistence)
}

func TestFileRepository_UnwritableDir(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	repo := archive.NewFileRepository(filepath.Join(blocker, "archive"), zerolog.Nop())
	err := repo.Create(context.Background(), sampleRecord(5, "2024-05-01T12:30:05Z"))
	assert.ErrorIs(t, err, archive.ErrPersistence)
}
