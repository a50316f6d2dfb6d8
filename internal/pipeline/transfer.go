package pipeline

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/elskow/berth/internal/remote"
)

// directories that never belong on the remote host; dependency trees are
// reinstalled there from the manifests
var transferSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".venv":        true,
}

// transferProject streams the local working copy as a gzip tar into the
// remote project directory. One remote round trip: the archive is produced
// on the fly and unpacked by tar on the other end.
func (p *Pipeline) transferProject(ctx context.Context) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeProjectArchive(pw, p.syncer.WorkDir()))
	}()

	dir := remote.Quote(p.cfg.Paths.ProjectDir)
	cmd := fmt.Sprintf("mkdir -p %[1]s && tar -xzf - -C %[1]s", dir)

	res, err := p.exec.RunInput(ctx, cmd, pr)
	if err != nil {
		return &ProvisioningError{Step: "project transfer", Err: err}
	}
	if !res.OK() {
		return &ProvisioningError{Step: "project transfer", Err: fmt.Errorf("exit %d: %s", res.ExitCode, res.Output)}
	}

	p.logger.Info("project transferred",
		zap.String("from", p.syncer.WorkDir()),
		zap.String("to", p.cfg.Paths.ProjectDir))
	return nil
}

func writeProjectArchive(w io.Writer, root string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() && transferSkipDirs[info.Name()] {
			return filepath.SkipDir
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
