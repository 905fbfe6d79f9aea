// Package packer writes bundle definitions to bundle files. Packer is the
// seam the build orchestrator calls; FilePacker is the reference
// implementation.
package packer

import (
	"context"
	"fmt"

	"github.com/tristendillon/locus/core/models"
)

type ReturnCode int

const (
	Success ReturnCode = iota
	Canceled
	UnsavedChanges
	MissingInputs
	Error
)

func (c ReturnCode) String() string {
	switch c {
	case Success:
		return "Success"
	case Canceled:
		return "Canceled"
	case UnsavedChanges:
		return "UnsavedChanges"
	case MissingInputs:
		return "MissingInputs"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("ReturnCode(%d)", int(c))
	}
}

type Params struct {
	BuildTarget string
	OutputPath  string
	// Compression picks the codec per bundle name. Nil means LZ4.
	Compression func(bundleName string) Compression
	// WriteFilter receives the direct dependencies of every bundle and
	// returns the names to write. Nil writes everything.
	WriteFilter func(deps map[string][]string) []string
	// Cache skips bundles whose inputs did not change. Optional.
	Cache *BuildCache
}

func (p Params) compressionFor(name string) Compression {
	if p.Compression == nil {
		return CompressionLZ4
	}
	return p.Compression(name)
}

// BundleResult describes one written bundle.
type BundleResult struct {
	FileName     string
	Hash         string
	Size         int64
	Compression  Compression
	Dependencies []string
	// AssetSizes is the serialized size of every packed asset by path.
	AssetSizes map[string]int64
	// Reused is set when the build cache kept the previous output.
	Reused bool
}

type Results struct {
	BundleInfos map[string]BundleResult
}

// Packer writes defs under params.OutputPath. A non Success code comes with
// an error describing it.
type Packer interface {
	Pack(ctx context.Context, params Params, defs []models.BundleDefinition) (ReturnCode, *Results, error)
}
