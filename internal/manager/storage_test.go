package manager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/config"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

func sampleRecords(t *testing.T) []Record {
	t.Helper()
	cfg := config.DefaultConfig()
	creator := world.NewBuilder(uuid.New(), "Steve")
	arena := world.New("arena", &creator, world.TypeVoid, true, time.UnixMilli(1000), cfg.WorldDefaults())
	arena.AddBuilder(world.NewBuilder(uuid.New(), "Alex"))
	arena.AddBuilder(world.NewBuilder(uuid.New(), "Sam"))
	arena.SetCustomSpawn(world.NewSpawn(0.5, 65, 0.5, 90, 0))
	arena.SetStatus(world.StatusAlmostFinished)

	sky := world.New("sky", nil, world.TypeCustom, false, time.UnixMilli(2000), cfg.WorldDefaults())
	sky.SetChunkGenerator("skyblock")
	return []Record{RecordOf(arena), RecordOf(sky)}
}

func TestStorageBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Storage{
		"yaml": func(t *testing.T) Storage {
			s, err := NewYAMLStorage(filepath.Join(t.TempDir(), "worlds.yml"))
			require.NoError(t, err)
			return s
		},
		"leveldb": func(t *testing.T) Storage {
			s, err := NewLevelDBStorage(filepath.Join(t.TempDir(), "worlds.db"))
			require.NoError(t, err)
			return s
		},
		"memory": func(*testing.T) Storage { return NewMemoryStorage() },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			want := sampleRecords(t)

			loaded, err := s.LoadAll()
			require.NoError(t, err)
			assert.Empty(t, loaded)

			require.NoError(t, s.Save(want...))
			loaded, err = s.LoadAll()
			require.NoError(t, err)
			assert.Equal(t, want, loaded)

			require.NoError(t, s.Delete("arena"))
			require.NoError(t, s.Delete("never-stored"))
			loaded, err = s.LoadAll()
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			assert.Equal(t, "sky", loaded[0].Name)
		})
	}
}

func TestYAMLStorageReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds.yml")
	s, err := NewYAMLStorage(path)
	require.NoError(t, err)
	want := sampleRecords(t)
	require.NoError(t, s.Save(want...))

	reopened, err := NewYAMLStorage(path)
	require.NoError(t, err)
	loaded, err := reopened.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, want, loaded)
}

func TestLevelDBStorageReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds.db")
	s, err := NewLevelDBStorage(path)
	require.NoError(t, err)
	want := sampleRecords(t)
	require.NoError(t, s.Save(want...))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	reopened, err := NewLevelDBStorage(path)
	require.NoError(t, err)
	defer reopened.Close()
	loaded, err := reopened.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, want, loaded)
}

const legacyWorlds = `worlds:
  oldworld:
    creator: Steve
    type: FLAT
    private: false
    item: GRASS_BLOCK
    status: FINISHED
    builders: "0b7c6e6a-3f2d-4c1e-9d55-1d1f4a4f5a11,Alex;broken;"
    spawn: "1;2;3;4;5"
  bare:
    date: 42
`

func TestYAMLStorageReadsLegacyEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds.yml")
	require.NoError(t, os.WriteFile(path, []byte(legacyWorlds), 0o644))

	s, err := NewYAMLStorage(path)
	require.NoError(t, err)
	records, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	bare, old := records[0], records[1]
	assert.Equal(t, "bare", bare.Name)
	assert.Equal(t, uuid.Nil, bare.ID)
	assert.Equal(t, world.TypeUnknown, bare.Data.Type)
	assert.Equal(t, world.StatusNotStarted, bare.Data.Status)
	assert.Equal(t, world.NoPermission, bare.Data.Permission)
	assert.Equal(t, int64(42), bare.Data.CreationDate)
	assert.Equal(t, world.Never, bare.Data.LastEdited)
	assert.True(t, bare.Data.Physics)

	assert.Equal(t, world.TypeFlat, old.Data.Type)
	assert.Equal(t, world.StatusFinished, old.Data.Status)
	require.NotNil(t, old.Data.Creator)
	assert.Equal(t, "Steve", old.Data.Creator.Name)
	assert.Equal(t, uuid.Nil, old.Data.Creator.ID)
	require.Len(t, old.Data.Builders, 1)
	assert.Equal(t, "Alex", old.Data.Builders[0].Name)

	w := world.FromData(old.ID, old.Name, old.Data, false)
	spawn, ok := w.CustomSpawn()
	require.True(t, ok)
	assert.Equal(t, 3.0, spawn.Position.Z())
}

func TestEncodeRecordOmitsOptionalKeys(t *testing.T) {
	records := sampleRecords(t)

	arena := encodeRecord(records[0])
	assert.NotEmpty(t, arena.Spawn)
	assert.Empty(t, arena.ChunkGenerator)
	assert.Equal(t, "Steve", arena.Creator)
	assert.Equal(t, "ALMOST_FINISHED", arena.Status)
	assert.Equal(t, world.PlayerHeadIcon, arena.Item)

	sky := encodeRecord(records[1])
	assert.Empty(t, sky.Spawn)
	assert.Equal(t, "skyblock", sky.ChunkGenerator)
	assert.Equal(t, "-", sky.Creator)
	assert.Empty(t, sky.CreatorID)
	assert.Empty(t, sky.Builders)

	data, err := marshalRecord(records[1])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "spawn:")
}
