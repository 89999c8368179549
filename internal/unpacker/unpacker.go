// Package unpacker walks a volume's catalog tree twice -- once to recreate
// every directory, once to write every file's contents -- dispatching each
// file record through the same flag precedence chain the original engine
// checks before deciding whether to skip, warn, or unpack normally.
package unpacker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/blockresolver"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/btree"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/filedecoder"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/snapshot"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/vdfserrors"
)

// Options configures a single unpack run.
type Options struct {
	ScratchThresholdBytes int64
	ContinueOnError       bool
}

// flagPrecedence is the exact order the original engine tests a file
// record's flags in: only the first match decides what happens to the file.
var flagPrecedence = []types.FileFlag{
	types.FlagAuthFile,
	types.FlagCompressedFile,
	types.FlagEncryptedFile,
	types.FlagHardLink,
	types.FlagHasBlocksInExttree,
	types.FlagImmutable,
	types.FlagOrphanInode,
	types.FlagProfiledFile,
	types.FlagReadOnlyAuth,
}

// skipFlags are the flags whose branch skips the file outright; every other
// flag in flagPrecedence only logs a notice before falling through to the
// normal raw/compressed dispatch.
var skipFlags = map[types.FileFlag]bool{
	types.FlagAuthFile:     true,
	types.FlagHardLink:     true,
	types.FlagImmutable:    true,
	types.FlagOrphanInode:  true,
	types.FlagProfiledFile: true,
	types.FlagReadOnlyAuth: true,
}

func firstMatchingFlag(common types.CatalogFolderRecord) (types.FileFlag, bool) {
	for _, f := range flagPrecedence {
		if common.HasFileFlag(f) {
			return f, true
		}
	}
	return 0, false
}

// Unpacker owns the trees and resolver a single unpack run shares.
type Unpacker struct {
	ds          *datasource.DataSource
	superBlocks types.SuperBlocks
	catalog     *btree.CatalogTree
	resolver    *blockresolver.Resolver
	blockSize   uint64
	opts        Options
	log         *logrus.Logger

	written map[uint64]string
}

// New opens the catalog and extent trees for the snapshot mgr has selected.
func New(mgr *snapshot.Manager, opts Options, log *logrus.Logger) (*Unpacker, error) {
	ds := mgr.DataSource()
	superBlocks := mgr.SuperBlocks()
	baseTable := mgr.Current()

	catalog, err := btree.NewCatalogTree(ds, superBlocks, baseTable)
	if err != nil {
		return nil, fmt.Errorf("open catalog tree: %w", err)
	}
	extents, err := btree.NewExtentTree(ds, superBlocks, baseTable)
	if err != nil {
		return nil, fmt.Errorf("open extent tree: %w", err)
	}

	return &Unpacker{
		ds:          ds,
		superBlocks: superBlocks,
		catalog:     catalog,
		resolver:    blockresolver.New(extents),
		blockSize:   uint64(1) << superBlocks.SuperBlock.LogBlockSize,
		opts:        opts,
		log:         log,
		written:     make(map[uint64]string),
	}, nil
}

// Unpack writes the whole volume's directory tree and file contents under outDir.
func (u *Unpacker) Unpack(outDir string) error {
	paths, err := u.buildDirectoryTree(outDir)
	if err != nil {
		return fmt.Errorf("build directory tree: %w", err)
	}
	return u.unpackFiles(outDir, paths)
}

// buildDirectoryTree is the unpacker's first pass: it creates every folder
// and records object_id -> path, retrying folders whose parent hasn't been
// placed yet until a full round makes no further progress.
func (u *Unpacker) buildDirectoryTree(outDir string) (map[uint64]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	paths := map[uint64]string{uint64(types.RootInode): outDir}

	it, err := u.catalog.AllRecordsIterator()
	if err != nil {
		return nil, err
	}

	var pending []btree.CatalogRecord
	for {
		rec, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if rec.Folder == nil || rec.Key.Data.ObjectID == rec.Key.Data.ParentID {
			continue
		}
		pending = append(pending, rec)
	}

	for progress := true; len(pending) > 0 && progress; {
		progress = false
		var next []btree.CatalogRecord
		for _, rec := range pending {
			parentPath, ok := paths[rec.Key.Data.ParentID]
			if !ok {
				next = append(next, rec)
				continue
			}
			dirPath := filepath.Join(parentPath, rec.Key.Data.NameString())
			if err := os.MkdirAll(dirPath, 0o755); err != nil {
				return nil, err
			}
			paths[rec.Key.Data.ObjectID] = dirPath
			progress = true
		}
		pending = next
	}

	if len(pending) > 0 {
		return nil, vdfserrors.ErrCannotFindParentFolder
	}
	return paths, nil
}

type deferredHlink struct {
	objectID uint64
	linkPath string
}

// unpackFiles is the second pass: every file and hard-link catalog record is
// dispatched to disk. Hard links whose target hasn't been written yet (tree
// order doesn't guarantee a name's File record precedes its aliases) are
// retried once more after the full pass completes.
func (u *Unpacker) unpackFiles(outDir string, paths map[uint64]string) error {
	it, err := u.catalog.AllRecordsIterator()
	if err != nil {
		return err
	}

	var deferred []deferredHlink
	for {
		rec, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if rec.Key.Data.ObjectID == rec.Key.Data.ParentID {
			continue
		}

		switch {
		case rec.File != nil:
			if err := u.unpackFile(paths, rec); err != nil {
				if u.opts.ContinueOnError {
					u.log.WithError(err).WithField("object_id", rec.Key.Data.ObjectID).Error("failed to unpack file")
					continue
				}
				return err
			}
		case rec.Hlink != nil:
			parentPath, ok := paths[rec.Key.Data.ParentID]
			if !ok {
				return vdfserrors.ErrCannotFindParentFolder
			}
			linkPath := filepath.Join(parentPath, rec.Key.Data.NameString())
			if target, ok := u.written[rec.Key.Data.ObjectID]; ok {
				if err := os.Link(target, linkPath); err != nil {
					return fmt.Errorf("link %s: %w", linkPath, err)
				}
				continue
			}
			deferred = append(deferred, deferredHlink{objectID: rec.Key.Data.ObjectID, linkPath: linkPath})
		}
	}

	for _, d := range deferred {
		target, ok := u.written[d.objectID]
		if !ok {
			u.log.WithField("object_id", d.objectID).Warn("hard link target was never unpacked, skipping")
			continue
		}
		if err := os.Link(target, d.linkPath); err != nil {
			return fmt.Errorf("link %s: %w", d.linkPath, err)
		}
	}
	return nil
}

func (u *Unpacker) unpackFile(paths map[uint64]string, rec btree.CatalogRecord) error {
	objectID := rec.Key.Data.ObjectID
	parentPath, ok := paths[rec.Key.Data.ParentID]
	if !ok {
		return vdfserrors.ErrCannotFindParentFolder
	}
	outPath := filepath.Join(parentPath, rec.Key.Data.NameString())
	entry := u.log.WithField("object_id", objectID).WithField("path", outPath)

	if !rec.File.Common.IsFileType(types.FileTypeRegular) {
		fileType, _ := rec.File.Common.FileType()
		entry.WithField("file_type", fileType).Info("skipping special file")
		return nil
	}

	if flag, ok := firstMatchingFlag(rec.File.Common); ok {
		if skipFlags[flag] {
			entry.WithField("flag", flag).Info("skipping file")
			return nil
		}
		entry.WithField("flag", flag).Info("unpacking file with notable flag")
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer f.Close()

	if rec.File.Common.HasFileFlag(types.FlagCompressedFile) {
		skipped, err := filedecoder.WriteCompressed(u.ds, u.resolver, objectID, rec.File.DataFork, u.blockSize, u.opts.ScratchThresholdBytes, f, entry)
		if err != nil {
			return err
		}
		if skipped {
			return os.Remove(outPath)
		}
		u.written[objectID] = outPath
		return nil
	}

	if err := filedecoder.WriteRaw(u.ds, u.resolver, objectID, rec.File.DataFork, u.blockSize, f); err != nil {
		return err
	}
	u.written[objectID] = outPath
	return nil
}
