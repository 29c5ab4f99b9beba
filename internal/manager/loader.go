package manager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/sandertv/gophertunnel/minecraft/nbt"
	"go.uber.org/zap"
)

// GeneratorMarker is written into every world folder the registry creates,
// holding the generator the world was made with.
const GeneratorMarker = ".buildsystem-generator-data.txt"

const levelFile = "level.dat"

var errOutsideContainer = errors.New("path leaves its parent directory")

// LocalName reports whether name is a clean relative path that stays below
// the directory it is joined to.
func LocalName(name string) bool {
	return name != "." && filepath.IsLocal(name) && filepath.Clean(name) == name
}

type LoadError struct {
	World string
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("world %s at %s: %v", e.World, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader inspects and manipulates world folders inside the world container.
type Loader struct {
	container string
	templates string
	logger    *zap.Logger
}

func NewLoader(container, templates string, logger *zap.Logger) *Loader {
	return &Loader{container: container, templates: templates, logger: logger}
}

// Path is the folder of the named world, or "" when the name would leave the
// world container.
func (l *Loader) Path(name string) string {
	dir, _ := l.dir(name)
	return dir
}

func (l *Loader) dir(name string) (string, error) {
	if !LocalName(name) {
		return "", &LoadError{World: name, Path: l.container, Err: errOutsideContainer}
	}
	return filepath.Join(l.container, name), nil
}

// Exists reports whether a world folder with this name is present.
func (l *Loader) Exists(name string) bool {
	dir, err := l.dir(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Discover lists folders in the container that look like worlds, meaning they
// hold a level.dat.
func (l *Loader) Discover() ([]string, error) {
	if err := os.MkdirAll(l.container, 0o755); err != nil {
		return nil, fmt.Errorf("create world container: %w", err)
	}
	entries, err := os.ReadDir(l.container)
	if err != nil {
		return nil, fmt.Errorf("read world container: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.container, entry.Name(), levelFile)); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.SortFunc(names, compareNames)
	return names, nil
}

// StorageVersion reads the version header of the world's level.dat, or -1
// when it has none. Bedrock level.dat files start with a little endian int32
// version and length, followed by the NBT body which may repeat the version.
func (l *Loader) StorageVersion(name string) int {
	dir, err := l.dir(name)
	if err != nil {
		return -1
	}
	data, err := os.ReadFile(filepath.Join(dir, levelFile))
	if err != nil || len(data) < 8 {
		return -1
	}
	var level struct {
		StorageVersion int32
	}
	if err := nbt.UnmarshalEncoding(data[8:], &level, nbt.LittleEndian); err == nil && level.StorageVersion > 0 {
		return int(level.StorageVersion)
	}
	return int(int32(binary.LittleEndian.Uint32(data[:4])))
}

// DataVersionTooHigh reports whether the world was written by a newer
// version than supported.
func (l *Loader) DataVersionTooHigh(name string, supported int) bool {
	v := l.StorageVersion(name)
	if v > supported {
		l.logger.Warn("world was created by a newer version",
			zap.String("world", name),
			zap.Int("version", v),
			zap.Int("supported", supported),
		)
		return true
	}
	return false
}

func (l *Loader) WriteGeneratorMarker(name, generator string) error {
	dir, err := l.dir(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, GeneratorMarker)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(generator), 0o644)
}

func (l *Loader) GeneratorMarker(name string) (string, bool) {
	dir, err := l.dir(name)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(dir, GeneratorMarker))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (l *Loader) TemplateExists(template string) bool {
	if !LocalName(template) {
		return false
	}
	info, err := os.Stat(filepath.Join(l.templates, template))
	return err == nil && info.IsDir()
}

// CopyTemplate copies a template folder to become the world folder.
func (l *Loader) CopyTemplate(template, name string) error {
	dst, err := l.dir(name)
	if err != nil {
		return err
	}
	src := filepath.Join(l.templates, template)
	if !l.TemplateExists(template) {
		return &LoadError{World: name, Path: src, Err: fs.ErrNotExist}
	}
	return copyDir(src, dst)
}

// Rename moves a world folder. It refuses to overwrite an existing folder.
func (l *Loader) Rename(oldName, newName string) error {
	src, err := l.dir(oldName)
	if err != nil {
		return err
	}
	dst, err := l.dir(newName)
	if err != nil {
		return err
	}
	if l.Exists(newName) {
		return &LoadError{World: newName, Path: dst, Err: fs.ErrExist}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func (l *Loader) Delete(name string) error {
	dir, err := l.dir(name)
	if err != nil {
		return err
	}
	if !l.Exists(name) {
		return &LoadError{World: name, Path: dir, Err: fs.ErrNotExist}
	}
	return os.RemoveAll(dir)
}

// Replace swaps the world folder for the contents of dir, used when a
// backup is restored.
func (l *Loader) Replace(name, dir string) error {
	target, err := l.dir(name)
	if err != nil {
		return err
	}
	old := target + ".old"
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	if l.Exists(name) {
		if err := os.Rename(target, old); err != nil {
			return err
		}
	}
	if err := os.Rename(dir, target); err != nil {
		// dir may live on another device, such as a temp directory.
		if err := copyDir(dir, target); err != nil {
			return err
		}
	}
	return os.RemoveAll(old)
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
