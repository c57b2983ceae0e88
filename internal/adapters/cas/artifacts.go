package cas

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"

	trellisfs "go.trai.ch/trellis/internal/adapters/fs"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/zerr"
)

// Publish copies the files under srcDir matching rules into the artifact
// directory of runID. Targets ending in .zip are packed into one archive.
func (s *Store) Publish(root, runID, srcDir string, rules []domain.ArtifactRule) ([]domain.Artifact, error) {
	artifacts, err := s.transfer(srcDir, domain.ArtifactsPath(root, runID), rules)
	if err != nil {
		return nil, zerr.With(err, "run_id", runID)
	}
	return artifacts, nil
}

// Retrieve copies the artifacts of runID matching rules into destDir.
// A run without artifacts yields nothing.
func (s *Store) Retrieve(root, runID string, rules []domain.ArtifactRule, destDir string) ([]domain.Artifact, error) {
	artifacts, err := s.transfer(domain.ArtifactsPath(root, runID), destDir, rules)
	if err != nil {
		return nil, zerr.With(err, "run_id", runID)
	}
	return artifacts, nil
}

// transfer applies rules to the files under src. Each destination is written
// once; the first include rule claiming it wins.
func (s *Store) transfer(src, dst string, rules []domain.ArtifactRule) ([]domain.Artifact, error) {
	files := slices.Collect(s.walker.WalkFiles(src, nil))
	if len(files) == 0 {
		return nil, nil
	}

	var (
		artifacts []domain.Artifact
		written   = make(map[string]bool)
	)
	for _, rule := range rules {
		if !rule.Include {
			continue
		}

		var entries []archiveEntry
		for _, rel := range files {
			if !rule.Matches(rel) || domain.Excluded(rules, rel) {
				continue
			}
			destRel := rule.Destination(rel)
			if rule.IsArchive() {
				entries = append(entries, archiveEntry{name: destRel, src: filepath.Join(src, filepath.FromSlash(rel))})
				continue
			}
			if written[destRel] {
				continue
			}
			written[destRel] = true

			a, err := copyFile(filepath.Join(src, filepath.FromSlash(rel)), dst, destRel)
			if err != nil {
				return nil, err
			}
			artifacts = append(artifacts, a)
		}

		if len(entries) == 0 || written[rule.Target] {
			continue
		}
		written[rule.Target] = true
		a, err := writeArchive(dst, rule.Target, entries)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func copyFile(srcPath, dstRoot, destRel string) (domain.Artifact, error) {
	in, err := os.Open(srcPath) //nolint:gosec // Path comes from walking a trusted directory
	if err != nil {
		return domain.Artifact{}, artifactError(err, destRel)
	}
	defer in.Close() //nolint:errcheck // Read-only file

	out, err := createFile(dstRoot, destRel)
	if err != nil {
		return domain.Artifact{}, err
	}

	digest, size, err := trellisfs.ReaderDigest(io.TeeReader(in, out))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return domain.Artifact{}, artifactError(err, destRel)
	}
	return domain.Artifact{Path: destRel, Size: size, Digest: digest}, nil
}

type archiveEntry struct {
	name string
	src  string
}

func writeArchive(dstRoot, target string, entries []archiveEntry) (domain.Artifact, error) {
	slices.SortFunc(entries, func(a, b archiveEntry) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		default:
			return 0
		}
	})
	entries = slices.CompactFunc(entries, func(a, b archiveEntry) bool { return a.name == b.name })

	out, err := createFile(dstRoot, target)
	if err != nil {
		return domain.Artifact{}, err
	}

	zw := zip.NewWriter(out)
	for _, e := range entries {
		if err := addToArchive(zw, e); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return domain.Artifact{}, artifactError(err, target)
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return domain.Artifact{}, artifactError(err, target)
	}
	if err := out.Close(); err != nil {
		return domain.Artifact{}, artifactError(err, target)
	}

	digest, size, err := trellisfs.FileDigest(filepath.Join(dstRoot, filepath.FromSlash(target)))
	if err != nil {
		return domain.Artifact{}, artifactError(err, target)
	}
	return domain.Artifact{Path: target, Size: size, Digest: digest}, nil
}

func addToArchive(zw *zip.Writer, e archiveEntry) error {
	in, err := os.Open(e.src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Read-only file

	w, err := zw.CreateHeader(&zip.FileHeader{Name: path.Clean(e.name), Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

func createFile(dstRoot, destRel string) (*os.File, error) {
	full := filepath.Join(dstRoot, filepath.FromSlash(destRel))
	if err := os.MkdirAll(filepath.Dir(full), domain.DirPerm); err != nil {
		return nil, artifactError(err, destRel)
	}
	//nolint:gosec // Destination is derived from validated artifact rules
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, domain.FilePerm)
	if err != nil {
		return nil, artifactError(err, destRel)
	}
	return f, nil
}

func artifactError(err error, artifactPath string) error {
	return zerr.With(zerr.Wrap(err, domain.ErrArtifactPublish.Error()), "artifact", artifactPath)
}
