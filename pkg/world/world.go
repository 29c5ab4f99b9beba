package world

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoPermission is the permission sentinel meaning anyone may enter.
const NoPermission = "-"

// Never is the timestamp stored for events that have not happened yet.
const Never int64 = -1

// Defaults holds the values a freshly created world starts with.
type Defaults struct {
	PublicPermission  string
	PrivatePermission string
	Difficulty        Difficulty

	Physics           bool
	Explosions        bool
	MobAI             bool
	BlockBreaking     bool
	BlockPlacement    bool
	BlockInteractions bool

	PublicBuildersEnabled  bool
	PrivateBuildersEnabled bool

	CreatorIsBuilder bool
}

func (d Defaults) permission(private bool, name string) string {
	p := d.PublicPermission
	if private {
		p = d.PrivatePermission
	}
	if p == "" {
		return NoPermission
	}
	return strings.ReplaceAll(p, "%world%", name)
}

func (d Defaults) buildersEnabled(private bool) bool {
	if private {
		return d.PrivateBuildersEnabled
	}
	return d.PublicBuildersEnabled
}

// Data is the persisted attribute set of a world, without its identity.
type Data struct {
	Creator        *Builder
	Type           Type
	Private        bool
	Icon           string
	Status         Status
	Project        string
	Permission     string
	Difficulty     Difficulty
	CreationDate   int64
	ChunkGenerator string

	Physics           bool
	Explosions        bool
	MobAI             bool
	BlockBreaking     bool
	BlockPlacement    bool
	BlockInteractions bool

	BuildersEnabled bool
	Builders        []Builder
	Spawn           string

	LastLoaded   int64
	LastUnloaded int64
	LastEdited   int64
}

// BuildWorld is the metadata aggregate of one managed world. Mutation is
// expected on the main scheduler goroutine; the lock only makes reads from
// backup workers safe.
type BuildWorld struct {
	mu sync.RWMutex

	id       uuid.UUID
	name     string
	typ      Type
	created  int64
	builders *Builders

	private           bool
	icon              string
	status            Status
	project           string
	permission        string
	difficulty        Difficulty
	chunkGenerator    string
	physics           bool
	explosions        bool
	mobAI             bool
	blockBreaking     bool
	blockPlacement    bool
	blockInteractions bool
	buildersEnabled   bool
	spawn             string

	lastLoaded   int64
	lastUnloaded int64
	lastEdited   int64

	creatorIsBuilder bool
	loaded           bool
}

// New creates the record of a world that is about to be generated or imported.
func New(name string, creator *Builder, typ Type, private bool, created time.Time, d Defaults) *BuildWorld {
	icon := typ.DefaultIcon()
	if private {
		icon = PlayerHeadIcon
	}
	return &BuildWorld{
		id:                uuid.New(),
		name:              name,
		typ:               typ,
		created:           created.UnixMilli(),
		builders:          NewBuilders(creator, nil),
		private:           private,
		icon:              icon,
		status:            StatusNotStarted,
		project:           "-",
		permission:        d.permission(private, name),
		difficulty:        d.Difficulty,
		physics:           d.Physics,
		explosions:        d.Explosions,
		mobAI:             d.MobAI,
		blockBreaking:     d.BlockBreaking,
		blockPlacement:    d.BlockPlacement,
		blockInteractions: d.BlockInteractions,
		buildersEnabled:   d.buildersEnabled(private),
		lastLoaded:        Never,
		lastUnloaded:      Never,
		lastEdited:        Never,
		creatorIsBuilder:  d.CreatorIsBuilder,
	}
}

// FromData rebuilds a persisted world. A nil id assigns a fresh one, which is
// what happens to records written before identities were stored.
func FromData(id uuid.UUID, name string, data Data, creatorIsBuilder bool) *BuildWorld {
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := data.Status
	if !status.Valid() {
		status = StatusNotStarted
	}
	permission := data.Permission
	if permission == "" {
		permission = NoPermission
	}
	project := data.Project
	if project == "" {
		project = "-"
	}
	icon := data.Icon
	if icon == "" {
		icon = data.Type.DefaultIcon()
	}
	return &BuildWorld{
		id:                id,
		name:              name,
		typ:               data.Type,
		created:           data.CreationDate,
		builders:          NewBuilders(data.Creator, data.Builders),
		private:           data.Private,
		icon:              icon,
		status:            status,
		project:           project,
		permission:        permission,
		difficulty:        data.Difficulty,
		chunkGenerator:    data.ChunkGenerator,
		physics:           data.Physics,
		explosions:        data.Explosions,
		mobAI:             data.MobAI,
		blockBreaking:     data.BlockBreaking,
		blockPlacement:    data.BlockPlacement,
		blockInteractions: data.BlockInteractions,
		buildersEnabled:   data.BuildersEnabled,
		spawn:             data.Spawn,
		lastLoaded:        data.LastLoaded,
		lastUnloaded:      data.LastUnloaded,
		lastEdited:        data.LastEdited,
		creatorIsBuilder:  creatorIsBuilder,
	}
}

func (w *BuildWorld) Data() Data {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var creator *Builder
	if c, ok := w.builders.Creator(); ok {
		creator = &c
	} else if w.builders.creator != nil {
		c := *w.builders.creator
		creator = &c
	}
	return Data{
		Creator:           creator,
		Type:              w.typ,
		Private:           w.private,
		Icon:              w.icon,
		Status:            w.status,
		Project:           w.project,
		Permission:        w.permission,
		Difficulty:        w.difficulty,
		CreationDate:      w.created,
		ChunkGenerator:    w.chunkGenerator,
		Physics:           w.physics,
		Explosions:        w.explosions,
		MobAI:             w.mobAI,
		BlockBreaking:     w.blockBreaking,
		BlockPlacement:    w.blockPlacement,
		BlockInteractions: w.blockInteractions,
		BuildersEnabled:   w.buildersEnabled,
		Builders:          w.builders.All(),
		Spawn:             w.spawn,
		LastLoaded:        w.lastLoaded,
		LastUnloaded:      w.lastUnloaded,
		LastEdited:        w.lastEdited,
	}
}

func (w *BuildWorld) UniqueID() uuid.UUID { return w.id }

func (w *BuildWorld) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// SetName is only called by the registry while it re-keys the world.
func (w *BuildWorld) SetName(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.name = name
}

func (w *BuildWorld) Type() Type { return w.typ }

func (w *BuildWorld) CreationDate() int64 { return w.created }

func (w *BuildWorld) Creator() (Builder, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.builders.Creator()
}

func (w *BuildWorld) SetCreator(creator *Builder) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.builders.SetCreator(creator)
}

func (w *BuildWorld) IsCreator(id uuid.UUID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.builders.IsCreator(id)
}

// IsBuilder reports whether id is a listed builder, or the creator when the
// creator is configured to count as one.
func (w *BuildWorld) IsBuilder(id uuid.UUID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.creatorIsBuilder && w.builders.IsCreator(id) {
		return true
	}
	return w.builders.Contains(id)
}

func (w *BuildWorld) AddBuilder(b Builder) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.builders.Add(b)
}

func (w *BuildWorld) RemoveBuilder(id uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.builders.Remove(id)
}

func (w *BuildWorld) Builders() []Builder {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.builders.All()
}

func (w *BuildWorld) BuilderNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.builders.Names()
}

func (w *BuildWorld) IsPrivate() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.private
}

func (w *BuildWorld) Visibility() Visibility { return VisibilityOf(w.IsPrivate()) }

func (w *BuildWorld) SetPrivate(private bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.private = private
}

func (w *BuildWorld) Icon() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.icon
}

func (w *BuildWorld) SetIcon(icon string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.icon = icon
}

func (w *BuildWorld) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// SetStatus accepts any transition.
func (w *BuildWorld) SetStatus(s Status) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = s
}

// IsArchived drives the block-modification veto of archived worlds.
func (w *BuildWorld) IsArchived() bool { return w.Status() == StatusArchive }

func (w *BuildWorld) Project() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.project
}

func (w *BuildWorld) SetProject(project string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.project = project
}

func (w *BuildWorld) Permission() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.permission
}

func (w *BuildWorld) SetPermission(permission string) {
	if permission == "" {
		permission = NoPermission
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.permission = permission
}

func (w *BuildWorld) RequiresPermission() bool { return w.Permission() != NoPermission }

func (w *BuildWorld) Difficulty() Difficulty {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.difficulty
}

func (w *BuildWorld) SetDifficulty(d Difficulty) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.difficulty = d
}

func (w *BuildWorld) CycleDifficulty() Difficulty {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.difficulty = w.difficulty.Next()
	return w.difficulty
}

func (w *BuildWorld) ChunkGenerator() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chunkGenerator
}

func (w *BuildWorld) SetChunkGenerator(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunkGenerator = name
}

func (w *BuildWorld) BuildersEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.buildersEnabled
}

func (w *BuildWorld) SetBuildersEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buildersEnabled = enabled
}

// Settings are the toggles passed through to the world engine.
type Settings struct {
	Physics           bool
	Explosions        bool
	MobAI             bool
	BlockBreaking     bool
	BlockPlacement    bool
	BlockInteractions bool
}

func (w *BuildWorld) Settings() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Settings{
		Physics:           w.physics,
		Explosions:        w.explosions,
		MobAI:             w.mobAI,
		BlockBreaking:     w.blockBreaking,
		BlockPlacement:    w.blockPlacement,
		BlockInteractions: w.blockInteractions,
	}
}

func (w *BuildWorld) SetSettings(s Settings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.physics = s.Physics
	w.explosions = s.Explosions
	w.mobAI = s.MobAI
	w.blockBreaking = s.BlockBreaking
	w.blockPlacement = s.BlockPlacement
	w.blockInteractions = s.BlockInteractions
}

func (w *BuildWorld) SetCustomSpawn(s Spawn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spawn = s.String()
}

func (w *BuildWorld) RemoveCustomSpawn() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spawn = ""
}

// CustomSpawn parses the stored spawn. It does not depend on the world being
// loaded and reports false when no spawn is set or the stored value is
// malformed.
func (w *BuildWorld) CustomSpawn() (Spawn, bool) {
	w.mu.RLock()
	raw := w.spawn
	w.mu.RUnlock()
	if raw == "" {
		return Spawn{}, false
	}
	return ParseSpawn(raw)
}

func (w *BuildWorld) LastLoaded() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastLoaded
}

func (w *BuildWorld) LastUnloaded() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastUnloaded
}

func (w *BuildWorld) LastEdited() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastEdited
}

func (w *BuildWorld) SetLastLoaded(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastLoaded = t.UnixMilli()
}

func (w *BuildWorld) SetLastUnloaded(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUnloaded = t.UnixMilli()
}

func (w *BuildWorld) SetLastEdited(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastEdited = t.UnixMilli()
}

func (w *BuildWorld) IsLoaded() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loaded
}

func (w *BuildWorld) SetLoaded(loaded bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loaded = loaded
}
