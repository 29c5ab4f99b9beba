package manager

import (
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// Record is one persisted world.
type Record struct {
	ID   uuid.UUID
	Name string
	Data world.Data
}

func RecordOf(w *world.BuildWorld) Record {
	return Record{ID: w.UniqueID(), Name: w.Name(), Data: w.Data()}
}

// document mirrors the keys of a world entry in worlds.yml.
type document struct {
	UUID              string `yaml:"uuid,omitempty"`
	Creator           string `yaml:"creator"`
	CreatorID         string `yaml:"creator-id"`
	Type              string `yaml:"type"`
	Private           bool   `yaml:"private"`
	Item              string `yaml:"item"`
	Status            string `yaml:"status"`
	Project           string `yaml:"project"`
	Permission        string `yaml:"permission"`
	Date              int64  `yaml:"date"`
	Physics           bool   `yaml:"physics"`
	Explosions        bool   `yaml:"explosions"`
	MobAI             bool   `yaml:"mobai"`
	BlockBreaking     bool   `yaml:"block-breaking"`
	BlockPlacement    bool   `yaml:"block-placement"`
	BlockInteractions bool   `yaml:"block-interactions"`
	Difficulty        string `yaml:"difficulty"`
	BuildersEnabled   bool   `yaml:"builders-enabled"`
	Builders          string `yaml:"builders"`
	Spawn             string `yaml:"spawn,omitempty"`
	ChunkGenerator    string `yaml:"chunk-generator,omitempty"`
	LastLoaded        int64  `yaml:"last-loaded"`
	LastUnloaded      int64  `yaml:"last-unloaded"`
	LastEdited        int64  `yaml:"last-edited"`
}

// legacyDocument pre-fills the values an older entry without a key had.
func legacyDocument() document {
	return document{
		Creator:           "-",
		Type:              world.TypeUnknown.String(),
		Status:            world.StatusNotStarted.String(),
		Project:           "-",
		Permission:        world.NoPermission,
		Physics:           true,
		Explosions:        true,
		MobAI:             true,
		BlockBreaking:     true,
		BlockPlacement:    true,
		BlockInteractions: true,
		Difficulty:        world.DifficultyPeaceful.String(),
		LastLoaded:        world.Never,
		LastUnloaded:      world.Never,
		LastEdited:        world.Never,
	}
}

func encodeRecord(r Record) document {
	d := r.Data
	doc := document{
		UUID:              r.ID.String(),
		Creator:           "-",
		Type:              d.Type.String(),
		Private:           d.Private,
		Item:              d.Icon,
		Status:            d.Status.String(),
		Project:           d.Project,
		Permission:        d.Permission,
		Date:              d.CreationDate,
		Physics:           d.Physics,
		Explosions:        d.Explosions,
		MobAI:             d.MobAI,
		BlockBreaking:     d.BlockBreaking,
		BlockPlacement:    d.BlockPlacement,
		BlockInteractions: d.BlockInteractions,
		Difficulty:        d.Difficulty.String(),
		BuildersEnabled:   d.BuildersEnabled,
		Spawn:             d.Spawn,
		LastLoaded:        d.LastLoaded,
		LastUnloaded:      d.LastUnloaded,
		LastEdited:        d.LastEdited,
	}
	if d.Creator != nil {
		doc.Creator = d.Creator.Name
		if d.Creator.ID != uuid.Nil {
			doc.CreatorID = d.Creator.ID.String()
		}
	}
	if d.Type == world.TypeCustom {
		doc.ChunkGenerator = d.ChunkGenerator
	}
	builders := make([]string, 0, len(d.Builders))
	for _, b := range d.Builders {
		builders = append(builders, b.String())
	}
	doc.Builders = strings.Join(builders, ";")
	return doc
}

// decodeRecord never fails on a single malformed value; it keeps what can be
// read, like the plugin always has for hand-edited files. Creators stored
// without an id come back with uuid.Nil for the caller to resolve.
func decodeRecord(name string, doc document) Record {
	id, _ := uuid.Parse(doc.UUID)
	status, ok := world.ParseStatus(doc.Status)
	if !ok {
		status = world.StatusNotStarted
	}
	difficulty, _ := world.ParseDifficulty(doc.Difficulty)

	data := world.Data{
		Type:              world.ParseType(doc.Type),
		Private:           doc.Private,
		Icon:              doc.Item,
		Status:            status,
		Project:           doc.Project,
		Permission:        doc.Permission,
		Difficulty:        difficulty,
		CreationDate:      doc.Date,
		ChunkGenerator:    doc.ChunkGenerator,
		Physics:           doc.Physics,
		Explosions:        doc.Explosions,
		MobAI:             doc.MobAI,
		BlockBreaking:     doc.BlockBreaking,
		BlockPlacement:    doc.BlockPlacement,
		BlockInteractions: doc.BlockInteractions,
		BuildersEnabled:   doc.BuildersEnabled,
		Builders:          parseBuilders(doc.Builders),
		Spawn:             doc.Spawn,
		LastLoaded:        doc.LastLoaded,
		LastUnloaded:      doc.LastUnloaded,
		LastEdited:        doc.LastEdited,
	}
	if doc.Creator != "" && (doc.Creator != "-" || doc.CreatorID != "") {
		creator := world.Builder{Name: doc.Creator}
		if cid, err := uuid.Parse(doc.CreatorID); err == nil {
			creator.ID = cid
		}
		data.Creator = &creator
	}
	return Record{ID: id, Name: name, Data: data}
}

func parseBuilders(s string) []world.Builder {
	out := make([]world.Builder, 0)
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		b, err := world.ParseBuilder(part)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

func marshalRecord(r Record) ([]byte, error) {
	return yaml.Marshal(encodeRecord(r))
}

func unmarshalRecord(name string, data []byte) (Record, error) {
	doc := legacyDocument()
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Record{}, err
	}
	return decodeRecord(name, doc), nil
}
