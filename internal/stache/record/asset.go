package record

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/codec"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/metacache"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/schema"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/storage"
)

// AssetKind is the name and table of assets.
const AssetKind = "assets"

const (
	metaDir = ".meta"
	metaExt = ".yaml"
)

// metaTrimmed lists the attributes left out of meta cache entries; they
// are recomputed from the path whenever an asset is materialized.
var metaTrimmed = []string{
	ColumnID, ColumnReadFrom, ColumnMetaFile,
	"container", "path", "folder", "basename", "filename", "extension",
	"created_at", "updated_at",
}

// Asset is the kind for files in asset containers. The binary itself is
// never parsed; the record lives in <dir>/.meta/<basename>.yaml.
type Asset struct {
	containers []Root
	store      storage.Storage
	meta       *metacache.Cache
}

// NewAsset returns the asset kind over the given containers. store is used
// to read binaries when computing file statistics.
func NewAsset(containers []Root, store storage.Storage, meta *metacache.Cache) *Asset {
	if meta == nil {
		meta = metacache.New()
	}
	return &Asset{containers: containers, store: store, meta: meta}
}

func (a *Asset) Name() string { return AssetKind }

func (a *Asset) Roots() []Root { return a.containers }

func (a *Asset) MetaFlag() string { return ColumnMetaFile }

func (a *Asset) Table() schema.Table {
	return schema.Table{
		Name: AssetKind,
		Key:  ColumnID,
		Columns: []schema.Column{
			schema.NewColumn(ColumnID, schema.String).AsUnique().Indexed(),
			schema.NewColumn(ColumnReadFrom, schema.String).AsNullable(),
			schema.NewColumn(ColumnMetaFile, schema.Boolean).WithDefault(false),
			schema.NewColumn("path", schema.String),
			schema.NewColumn("container", schema.String).Indexed(),
			schema.NewColumn("folder", schema.String).Indexed(),
			schema.NewColumn("basename", schema.String).Indexed(),
			schema.NewColumn("filename", schema.String).Indexed(),
			schema.NewColumn("extension", schema.String).Indexed(),
			schema.NewColumn("duration", schema.Integer).AsNullable().WithDefault(nil),
			schema.NewColumn("height", schema.Integer).AsNullable().WithDefault(nil),
			schema.NewColumn("last_modified", schema.Integer).AsNullable().WithDefault(nil),
			schema.NewColumn("mime_type", schema.String).AsNullable().WithDefault(nil),
			schema.NewColumn("size", schema.Integer).AsNullable().WithDefault(nil),
			schema.NewColumn("width", schema.Integer).AsNullable().WithDefault(nil),
			schema.NewColumn(ColumnData, schema.JSON).AsNullable().WithDefault(nil),
		},
	}
}

// Accept skips meta files and anything else hidden.
func (a *Asset) Accept(rel string) bool {
	return !hidden(rel)
}

// Owner maps a meta file back to its binary; other hidden paths are
// ignored.
func (a *Asset) Owner(rel string) (string, bool) {
	dir, base := path.Split(rel)
	if path.Base(strings.TrimSuffix(dir, "/")) == metaDir && strings.HasSuffix(base, metaExt) {
		owner := path.Join(path.Dir(strings.TrimSuffix(dir, "/")), strings.TrimSuffix(base, metaExt))
		return owner, !hidden(owner)
	}
	return rel, a.Accept(rel)
}

// Identify derives the key from container and path.
func (a *Asset) Identify(row schema.Row) string {
	container, _ := row["container"].(string)
	rel, _ := row["path"].(string)
	return container + "::" + rel
}

func (a *Asset) ContentPath(root Root, rel string) (string, bool) {
	return path.Join(root.Dir, MetaPath(rel)), true
}

// MetaPath returns the meta file of the asset at rel, relative to the same
// container: images/cat.png becomes images/.meta/cat.png.yaml.
func MetaPath(rel string) string {
	p := path.Dir(rel) + "/" + metaDir + "/" + path.Base(rel) + metaExt
	p = strings.TrimPrefix(p, "./")
	return strings.TrimLeft(p, "/")
}

// DecodePath derives the container and path info of an asset.
func (a *Asset) DecodePath(root Root, rel string) (schema.Row, error) {
	if root.Handle == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoGrouping, rel)
	}
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNoGrouping)
	}

	folder := path.Dir(rel)
	if folder == "." {
		folder = "/"
	}
	basename := path.Base(rel)
	ext := path.Ext(basename)

	return schema.Row{
		"container": root.Handle,
		"path":      rel,
		"folder":    folder,
		"basename":  basename,
		"filename":  strings.TrimSuffix(basename, ext),
		"extension": strings.TrimPrefix(ext, "."),
	}, nil
}

// Decode builds an asset row from its meta file contents. The extra data is
// the meta file's "data" mapping. When the meta file is missing the row is
// returned with a Deferred that computes file statistics from the binary.
func (a *Asset) Decode(src Source) (*Decoded, error) {
	attrs, err := a.DecodePath(src.Root, src.Path)
	if err != nil {
		return nil, err
	}

	parsed, err := codec.Parse(src.Contents)
	if err != nil {
		return nil, fmt.Errorf("failed to parse meta of %s: %w", src.Path, err)
	}

	table := a.Table()
	row := schema.Row{}
	for k, v := range parsed {
		if _, ok := table.Column(k); ok && k != ColumnData {
			row[k] = v
		}
	}
	for k, v := range attrs {
		row[k] = v
	}
	data := asMap(parsed[ColumnData])
	if data == nil {
		data = map[string]any{}
	}
	row[ColumnData] = data
	row[ColumnMetaFile] = src.MetaExists

	if isEmpty(row[ColumnID]) {
		row[ColumnID] = a.Identify(row)
	}

	a.Materialize(row)

	decoded := &Decoded{Row: row}
	if !src.MetaExists {
		decoded.Deferred = a.fileStats(src.Root, attrs["path"].(string), row)
	}
	return decoded, nil
}

// fileStats reads the binary and computes size, last_modified, mime_type
// and, for decodable images, width and height.
func (a *Asset) fileStats(root Root, rel string, row schema.Row) Deferred {
	return func(ctx context.Context, _ Finder) (schema.Row, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full := path.Join(root.Dir, rel)

		contents, err := a.store.Read(full)
		if err != nil {
			return nil, fmt.Errorf("failed to read asset %s: %w", full, err)
		}
		modified, err := a.store.LastModified(full)
		if err != nil {
			return nil, fmt.Errorf("failed to stat asset %s: %w", full, err)
		}

		patch := schema.Row{
			"size":          int64(len(contents)),
			"last_modified": modified.Unix(),
			"mime_type":     mimeType(rel, contents),
		}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(contents)); err == nil {
			patch["width"] = int64(cfg.Width)
			patch["height"] = int64(cfg.Height)
		}

		merged := row.Clone()
		for k, v := range patch {
			merged[k] = v
		}
		a.Materialize(merged)

		return patch, nil
	}
}

func mimeType(rel string, contents []byte) string {
	if t := mime.TypeByExtension(path.Ext(rel)); t != "" {
		return t
	}
	return http.DetectContentType(contents)
}

// FileData returns the mapping written to an asset's meta file. Nulls are
// kept so every statistic is present in the file.
func (a *Asset) FileData(row schema.Row) map[string]any {
	data := asMap(row[ColumnData])
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		ColumnData:      data,
		"size":          row["size"],
		"last_modified": row["last_modified"],
		"width":         row["width"],
		"height":        row["height"],
		"mime_type":     row["mime_type"],
		"duration":      row["duration"],
	}
}

func (a *Asset) Encode(row schema.Row) ([]byte, error) {
	return codec.Dump(a.FileData(row))
}

// Locate returns the meta file path of the row.
func (a *Asset) Locate(row schema.Row) (string, error) {
	container, _ := row["container"].(string)
	rel, _ := row["path"].(string)
	if container == "" || rel == "" {
		return "", fmt.Errorf("%w: asset %v needs container and path", ErrUnlocatable, row[ColumnID])
	}
	root, ok := a.container(container)
	if !ok {
		return "", fmt.Errorf("%w: unknown container %s", ErrUnlocatable, container)
	}
	return path.Join(root.Dir, MetaPath(rel)), nil
}

func (a *Asset) container(handle string) (Root, bool) {
	for _, r := range a.containers {
		if r.Handle == handle {
			return r, true
		}
	}
	return Root{}, false
}

// MetaKey is the meta cache key of an asset.
func MetaKey(container, rel string) string {
	return "asset-meta::" + container + "::" + rel
}

// Meta returns the cached metadata of an asset.
func (a *Asset) Meta(container, rel string) (map[string]any, bool) {
	return a.meta.Get(MetaKey(container, rel))
}

// Materialize stores the trimmed attributes of row in the meta cache.
func (a *Asset) Materialize(row schema.Row) {
	container, _ := row["container"].(string)
	rel, _ := row["path"].(string)
	if container == "" || rel == "" {
		return
	}

	trimmed := make(map[string]any, len(row))
	for k, v := range row {
		trimmed[k] = v
	}
	for _, k := range metaTrimmed {
		delete(trimmed, k)
	}
	a.meta.Put(MetaKey(container, rel), trimmed)
}
