package packer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/models"
)

// Project is the asset access FilePacker needs, implemented by
// assetdb.Database.
type Project interface {
	ReadAsset(assetPath string) ([]byte, error)
	GUID(assetPath string) (string, error)
	ContentHash(assetPath string) (string, error)
}

// DependencyResolver yields the bundlable direct dependencies of an asset.
type DependencyResolver interface {
	Dependencies(assetPath string) ([]string, error)
}

// FilePacker writes every bundle as a single file. Assets not declared by
// any definition are pulled into each bundle that reaches them; declared
// assets of other bundles become bundle dependencies.
type FilePacker struct {
	project  Project
	resolver DependencyResolver
}

func NewFilePacker(project Project, resolver DependencyResolver) *FilePacker {
	return &FilePacker{project: project, resolver: resolver}
}

type plan struct {
	def      models.BundleDefinition
	assets   []PackedAsset
	deps     []string
	implicit []string
}

func (p *FilePacker) Pack(ctx context.Context, params Params, defs []models.BundleDefinition) (ReturnCode, *Results, error) {
	owner := make(map[string]string)
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return Error, nil, err
		}
		for _, asset := range def.AssetPaths {
			owner[asset] = def.BundleName
		}
	}

	plans := make(map[string]*plan, len(defs))
	deps := make(map[string][]string, len(defs))
	for _, def := range defs {
		if ctx.Err() != nil {
			return Canceled, nil, ctx.Err()
		}
		pl, err := p.plan(def, owner)
		if err != nil {
			return Error, nil, err
		}
		plans[def.BundleName] = pl
		deps[def.BundleName] = pl.deps
	}

	names := make([]string, 0, len(plans))
	if params.WriteFilter != nil {
		for _, name := range params.WriteFilter(deps) {
			if _, ok := plans[name]; ok {
				names = append(names, name)
			}
		}
	} else {
		for name := range plans {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if err := os.MkdirAll(params.OutputPath, 0755); err != nil {
		return Error, nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	results := &Results{BundleInfos: make(map[string]BundleResult, len(names))}
	for _, name := range names {
		if ctx.Err() != nil {
			return Canceled, nil, ctx.Err()
		}
		result, err := p.write(plans[name], params)
		if errors.Is(err, os.ErrNotExist) {
			return MissingInputs, nil, err
		}
		if err != nil {
			return Error, nil, err
		}
		results.BundleInfos[name] = result
	}

	if params.Cache != nil {
		if err := params.Cache.Save(); err != nil {
			logger.Warn("Packer: Failed to save build cache: %v", err)
		}
	}
	logger.Debug("Packer: Wrote %d of %d bundles to %s", len(names), len(defs), params.OutputPath)
	return Success, results, nil
}

// plan walks the dependencies of a definition's assets. Only paths are
// collected here; asset data is read when the bundle is written.
func (p *FilePacker) plan(def models.BundleDefinition, owner map[string]string) (*plan, error) {
	pl := &plan{def: def}
	depSet := make(map[string]bool)
	visited := make(map[string]bool)
	queue := append([]string(nil), def.AssetPaths...)
	for _, a := range def.AssetPaths {
		visited[a] = true
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := p.resolver.Dependencies(current)
		if err != nil {
			return nil, fmt.Errorf("bundle %s: %w", def.BundleName, err)
		}
		for _, child := range children {
			if visited[child] {
				continue
			}
			visited[child] = true
			if bundle, ok := owner[child]; ok {
				if bundle != def.BundleName {
					depSet[bundle] = true
				}
				continue
			}
			pl.implicit = append(pl.implicit, child)
			queue = append(queue, child)
		}
	}

	for dep := range depSet {
		pl.deps = append(pl.deps, dep)
	}
	sort.Strings(pl.deps)
	return pl, nil
}

func (p *FilePacker) write(pl *plan, params Params) (BundleResult, error) {
	name := pl.def.BundleName
	fileName := filepath.Join(params.OutputPath, name)
	compression := params.compressionFor(name)

	inputs := append(append([]string(nil), pl.def.AssetPaths...), pl.implicit...)
	inputHash, err := p.inputHash(inputs, pl.deps, compression)
	if err != nil {
		return BundleResult{}, fmt.Errorf("bundle %s: %w", name, err)
	}
	if params.Cache != nil {
		if cached, ok := params.Cache.Lookup(fileName, inputHash); ok {
			logger.Debug("Packer: %s unchanged, reusing previous output", name)
			cached.Reused = true
			return cached, nil
		}
	}

	bundle := &BundleFile{Name: name, Dependencies: pl.deps}
	sizes := make(map[string]int64, len(inputs))
	for i, assetPath := range inputs {
		data, err := p.project.ReadAsset(assetPath)
		if err != nil {
			return BundleResult{}, fmt.Errorf("bundle %s: %w", name, err)
		}
		guid, err := p.project.GUID(assetPath)
		if err != nil {
			return BundleResult{}, fmt.Errorf("bundle %s: %w", name, err)
		}
		address := assetPath
		if i < len(pl.def.AddressableNames) && pl.def.AddressableNames[i] != "" {
			address = pl.def.AddressableNames[i]
		}
		bundle.Assets = append(bundle.Assets, PackedAsset{Address: address, Path: assetPath, GUID: guid, Data: data})
		sizes[assetPath] = int64(len(data))
	}

	data, hash, err := Encode(bundle, compression)
	if err != nil {
		return BundleResult{}, err
	}
	if err := os.WriteFile(fileName, data, 0644); err != nil {
		return BundleResult{}, fmt.Errorf("failed to write bundle %s: %w", name, err)
	}
	used, _ := HeaderCompression(data)

	result := BundleResult{
		FileName:     fileName,
		Hash:         hash,
		Size:         int64(len(data)),
		Compression:  used,
		Dependencies: pl.deps,
		AssetSizes:   sizes,
	}
	if params.Cache != nil {
		params.Cache.Record(fileName, inputHash, result)
	}
	return result, nil
}

func (p *FilePacker) inputHash(inputs, deps []string, c Compression) (string, error) {
	parts := make([]string, 0, len(inputs)+2)
	for _, assetPath := range inputs {
		h, err := p.project.ContentHash(assetPath)
		if err != nil {
			return "", err
		}
		parts = append(parts, assetPath+"="+h)
	}
	parts = append(parts, "deps="+strings.Join(deps, ","), "codec="+c.String())
	return combineHash(parts), nil
}
