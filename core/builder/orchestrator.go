// Package builder sequences a multi-package bundle build: validation, the
// dependency tree of every package, packing per build type and manifest
// output.
package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/tristendillon/locus/core/assetdb"
	"github.com/tristendillon/locus/core/bundlelist"
	"github.com/tristendillon/locus/core/config"
	"github.com/tristendillon/locus/core/deptree"
	"github.com/tristendillon/locus/core/graph"
	"github.com/tristendillon/locus/core/logger"
	"github.com/tristendillon/locus/core/manifest"
	"github.com/tristendillon/locus/core/models"
	"github.com/tristendillon/locus/core/packer"
	"github.com/tristendillon/locus/core/validate"
)

var ErrPackFailed = errors.New("pack failed")

// PackError reports a non success code from the packer.
type PackError struct {
	Package string
	Type    BuildType
	Code    packer.ReturnCode
	Err     error
}

func (e *PackError) Error() string {
	return fmt.Sprintf("package %s (%s): pack returned %s: %v", e.Package, e.Type, e.Code, e.Err)
}

func (e *PackError) Unwrap() []error {
	return []error{ErrPackFailed, e.Err}
}

type Options struct {
	Target string
	Types  []BuildType
	// Incremental reuses unchanged bundle files between builds.
	Incremental bool
}

// PackageTree is the analysed state of one package.
type PackageTree struct {
	Package     *config.PackageSettings
	Definitions []models.BundleDefinition
	Result      *deptree.Result
}

// PackageBuild is one written package output.
type PackageBuild struct {
	Package    *config.PackageSettings
	Type       BuildType
	OutputPath string
	Manifest   *manifest.Manifest
	Results    *packer.Results
}

type Report struct {
	Trees  []PackageTree
	Builds []PackageBuild
}

type Orchestrator struct {
	cfg      *config.Config
	project  bundlelist.Project
	resolver deptree.Resolver
	packer   packer.Packer
	lists    *bundlelist.Builder

	mutex    sync.Mutex
	state    State
	onChange []func(from, to State)
	now      func() time.Time
}

func New(cfg *config.Config, project bundlelist.Project, resolver deptree.Resolver, p packer.Packer) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		project:  project,
		resolver: resolver,
		packer:   p,
		lists:    bundlelist.New(project, path.Join(filepath.ToSlash(cfg.ScratchDir), "catalogs"), cfg.Exclude),
		state:    Idle,
		now:      time.Now,
	}
}

// NewForDatabase wires the orchestrator to a filesystem asset database and
// the reference file packer.
func NewForDatabase(cfg *config.Config, db *assetdb.Database) *Orchestrator {
	resolver := assetdb.NewResolver(db)
	return New(cfg, db, resolver, packer.NewFilePacker(db, resolver))
}

func (o *Orchestrator) State() State {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.state
}

// OnStateChange registers fn to be called on every transition.
func (o *Orchestrator) OnStateChange(fn func(from, to State)) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.onChange = append(o.onChange, fn)
}

func (o *Orchestrator) transition(to State) {
	o.mutex.Lock()
	from := o.state
	if !canTransition(from, to) {
		o.mutex.Unlock()
		panic(fmt.Sprintf("builder: invalid transition %s -> %s", from, to))
	}
	o.state = to
	observers := append([]func(State, State){}, o.onChange...)
	o.mutex.Unlock()

	logger.Debug("Builder: %s -> %s", from, to)
	for _, fn := range observers {
		fn(from, to)
	}
}

func (o *Orchestrator) fail(err error) error {
	o.transition(Failed)
	logger.Error("Builder: %v", err)
	return err
}

// Packages loads the included packages and checks their names are unique.
func (o *Orchestrator) Packages() ([]*config.PackageSettings, error) {
	packages, err := o.cfg.LoadPackages()
	if err != nil {
		return nil, err
	}
	if err := validate.AssertUniquePackageNames(packages); err != nil {
		return nil, err
	}
	return packages, nil
}

// Trees builds the bundle list and dependency tree of every package. The
// catalogs the bundle lists write stay in place until ClearCatalogs.
func (o *Orchestrator) Trees(packages []*config.PackageSettings) ([]PackageTree, error) {
	trees := make([]PackageTree, 0, len(packages))
	for _, pkg := range packages {
		defs, err := o.lists.Build(pkg)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg.Name, err)
		}
		result, err := deptree.Process(o.resolver, defs)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg.Name, err)
		}
		logger.Info("Builder: Package %s has %d bundles, %d shared, %d assets", pkg.Name, len(defs), len(result.SharedBundles), len(result.AllAssets))
		trees = append(trees, PackageTree{Package: pkg, Definitions: defs, Result: result})
	}
	return trees, nil
}

// PackageResults adapts trees for the validators.
func PackageResults(trees []PackageTree) []validate.PackageResult {
	results := make([]validate.PackageResult, 0, len(trees))
	for _, t := range trees {
		name := t.Package.SourcePath
		if name == "" {
			name = t.Package.Name
		}
		results = append(results, validate.PackageResult{Package: name, Result: t.Result})
	}
	return results
}

// ClearCatalogs removes the scratch path catalogs written by Trees.
func (o *Orchestrator) ClearCatalogs() {
	dir := o.project.Abs(o.lists.CatalogDir())
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("Builder: Failed to clear catalogs in %s: %v", dir, err)
	}
}

// Build runs the whole pipeline for one target platform. The trees are
// computed once and reused for every build type.
func (o *Orchestrator) Build(ctx context.Context, opts Options) (*Report, error) {
	o.transition(Validating)
	defer o.ClearCatalogs()

	profile, err := o.cfg.Profile(opts.Target)
	if err != nil {
		return nil, o.fail(err)
	}
	packages, err := o.Packages()
	if err != nil {
		return nil, o.fail(err)
	}
	if len(opts.Types) == 0 {
		opts.Types = []BuildType{Local, Remote}
	}

	o.transition(TreeBuilding)
	trees, err := o.Trees(packages)
	if err != nil {
		return nil, o.fail(err)
	}
	if o.cfg.DisallowCrossReference {
		if err := validate.AssertNoCrossReference(PackageResults(trees)); err != nil {
			return nil, o.fail(err)
		}
	}

	var cache *packer.BuildCache
	if opts.Incremental {
		cache, err = packer.OpenBuildCache(o.cfg.Abs(filepath.Join(o.cfg.ScratchDir, "buildcache")))
		if err != nil {
			logger.Warn("Builder: Incremental build disabled: %v", err)
		}
	}

	report := &Report{Trees: trees}
	mirror := NewStreamingMirror(o.cfg.Abs(profile.StreamingFolder))
	mirrored := false
	for _, tree := range trees {
		for _, buildType := range opts.Types {
			build, err := o.buildPackage(ctx, tree, profile, opts.Target, buildType, cache)
			if err != nil {
				return report, o.fail(err)
			}
			report.Builds = append(report.Builds, *build)

			if buildType == Local {
				if _, err := mirror.Mirror(tree.Package.GUID, build.OutputPath); err != nil {
					return report, o.fail(fmt.Errorf("failed to mirror local bundles: %w", err))
				}
				mirrored = true
			}
		}
	}
	if mirrored {
		if _, err := mirror.WritePackageList(); err != nil {
			return report, o.fail(fmt.Errorf("failed to write package list: %w", err))
		}
	}

	o.transition(Done)
	logger.Info("Builder: Built %d package outputs for %s", len(report.Builds), opts.Target)
	return report, nil
}

func (o *Orchestrator) buildPackage(ctx context.Context, tree PackageTree, profile *config.DistributionProfile, target string, buildType BuildType, cache *packer.BuildCache) (*PackageBuild, error) {
	o.transition(Packing)
	pkg := tree.Package

	defs := append([]models.BundleDefinition(nil), tree.Definitions...)
	if pkg.AutoCreateSharedBundles {
		defs = append(defs, tree.Result.SharedBundles...)
	}

	outputPath := o.cfg.Abs(profile.OutputPath(buildType == Local, pkg.GUID, target))
	params := packer.Params{
		BuildTarget: target,
		OutputPath:  outputPath,
		Compression: o.compression(pkg, buildType),
		Cache:       cache,
	}
	if buildType == Local {
		params.WriteFilter = o.localFilter(pkg)
	}

	logger.Info("Builder: Packing %s (%s) into %s", pkg.Name, buildType, outputPath)
	code, results, err := o.packer.Pack(ctx, params, defs)
	if code != packer.Success {
		return nil, &PackError{Package: pkg.Name, Type: buildType, Code: code, Err: err}
	}

	o.transition(ManifestWriting)
	m, err := o.writeManifest(pkg, profile, target, outputPath, results)
	if err != nil {
		return nil, err
	}
	return &PackageBuild{Package: pkg, Type: buildType, OutputPath: outputPath, Manifest: m, Results: results}, nil
}

// compression uses LZ4 for every local bundle. Remote bundles use zstd when
// their setting asks for compression.
func (o *Orchestrator) compression(pkg *config.PackageSettings, buildType BuildType) func(string) packer.Compression {
	return func(bundleName string) packer.Compression {
		if buildType == Local {
			return packer.CompressionLZ4
		}
		for _, setting := range pkg.Bundles {
			if setting.NameWithExtension() == bundleName && setting.CompressBundle {
				return packer.CompressionZstd
			}
		}
		return packer.CompressionLZ4
	}
}

// localFilter keeps the bundles of player included settings and everything
// they depend on.
func (o *Orchestrator) localFilter(pkg *config.PackageSettings) func(map[string][]string) []string {
	return func(deps map[string][]string) []string {
		seen := make(map[string]bool)
		var included []string
		for _, setting := range pkg.Bundles {
			if !setting.IncludedInPlayer {
				continue
			}
			names, err := o.lists.BundleNames(pkg, setting)
			if err != nil {
				logger.Warn("Builder: %v", err)
				continue
			}
			for _, name := range names {
				for _, dep := range manifest.CollectBundleDependencies(deps, name, true) {
					if !seen[dep] {
						seen[dep] = true
						included = append(included, dep)
					}
				}
			}
		}
		return included
	}
}

func (o *Orchestrator) writeManifest(pkg *config.PackageSettings, profile *config.DistributionProfile, target, outputPath string, results *packer.Results) (*manifest.Manifest, error) {
	deps := make(map[string][]string, len(results.BundleInfos))
	for name, info := range results.BundleInfos {
		deps[name] = info.Dependencies
	}

	infos := make([]manifest.BundleInfo, 0, len(results.BundleInfos))
	for name, info := range results.BundleInfos {
		infos = append(infos, manifest.BundleInfo{
			BundleName:   name,
			Dependencies: manifest.CollectBundleDependencies(deps, name, false),
			Hash:         info.Hash,
			Size:         info.Size,
			PackageGUID:  pkg.GUID,
		})
	}

	m, err := manifest.New(target, infos)
	if err != nil {
		return nil, err
	}
	now := o.now()
	m.SetHeader(manifest.Header{
		BuildTime:             now,
		RemoteURL:             profile.RemoteURLFor(pkg.GUID),
		PackageName:           pkg.Name,
		PackageGUID:           pkg.GUID,
		DownloadAtInitialTime: pkg.DownloadAtInitialTime,
	})
	if err := m.Write(outputPath); err != nil {
		return nil, err
	}

	cycles := graph.FromDependencies(deps).DetectCycles()
	for _, cycle := range cycles {
		logger.Warn("Builder: Bundle dependency cycle in %s: %v", pkg.Name, cycle)
	}
	if err := WriteBuildLog(outputPath, results, cycles, now); err != nil {
		logger.Warn("Builder: Failed to write build log: %v", err)
	}
	logger.Info("Builder: Wrote manifest for %s with %d bundles (%s)", pkg.Name, len(m.BundleInfos), m.GlobalHash)
	return m, nil
}
