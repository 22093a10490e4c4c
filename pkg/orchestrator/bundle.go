package orchestrator

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// bundleMaterializer snapshots data as tar.gz archives: inputs are packed
// locally and unpacked in the working directory, and the run script packs the
// declared outputs into root_directory/outputs/{jobid}.tar.gz for retrieval.
type bundleMaterializer struct {
	localDir string
}

var _ Materializer = (*bundleMaterializer)(nil)

func (m *bundleMaterializer) Name() string { return "bundle" }

func (m *bundleMaterializer) RunscriptTemplate() string { return "bundle.template.sh" }

func (m *bundleMaterializer) WorkingDirectory(root, jobID string) string {
	return path.Join(root, jobID)
}

// Stage packs the inputs into a local tar.gz, transfers it, and unpacks it
// in the working directory. The remote archive is removed after extraction.
func (m *bundleMaterializer) Stage(ctx context.Context, o *Orchestrator, inputs []string) error {
	if err := checkInputFiles(inputs); err != nil {
		return err
	}
	wd, err := o.WorkingDirectory(ctx)
	if err != nil {
		return err
	}
	if err := o.Session().MkdirAll(ctx, wd); err != nil {
		return fmt.Errorf("create working directory %s: %w", wd, err)
	}
	if len(inputs) == 0 {
		return nil
	}

	archive, err := packArchive(inputs)
	if err != nil {
		return fmt.Errorf("pack input bundle: %w", err)
	}
	defer func() { _ = os.Remove(archive) }()

	remoteArchive := path.Join(wd, ".offload-inputs.tar.gz")
	if err := o.Session().Put(ctx, archive, remoteArchive); err != nil {
		return fmt.Errorf("transfer input bundle: %w", err)
	}

	cmd := fmt.Sprintf("tar xzf %s -C %s && rm -f %s",
		shq(remoteArchive), shq(wd), shq(remoteArchive))
	if _, stderr, err := o.Session().Execute(ctx, cmd); err != nil {
		return fmt.Errorf("unpack input bundle: %w (%s)", err, strings.TrimSpace(stderr))
	}
	o.Logger().Debug("input bundle staged", zap.Int("inputs", len(inputs)))
	return nil
}

// Retrieve fetches the output bundle the run script produced and extracts it
// locally. A missing bundle is logged, not an error: the job may have failed
// before producing outputs, and its exit status is the source of truth.
func (m *bundleMaterializer) Retrieve(ctx context.Context, o *Orchestrator, outputs []string) error {
	if len(outputs) == 0 {
		return nil
	}
	root, err := o.RootDirectory(ctx)
	if err != nil {
		return err
	}

	remoteBundle := path.Join(root, "outputs", o.JobID()+".tar.gz")
	exists, err := o.Session().Exists(ctx, remoteBundle)
	if err != nil {
		return fmt.Errorf("check output bundle %s: %w", remoteBundle, err)
	}
	if !exists {
		o.Logger().Error("expected output bundle does not exist", zap.String("bundle", remoteBundle))
		return nil
	}

	tmp, err := os.CreateTemp("", "offload-outputs-*.tar.gz")
	if err != nil {
		return fmt.Errorf("create local bundle file: %w", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpName) }()

	if err := o.Session().Get(ctx, remoteBundle, tmpName); err != nil {
		return fmt.Errorf("retrieve output bundle: %w", err)
	}

	dest := m.localDir
	if dest == "" {
		dest = "."
	}
	if err := unpackArchive(tmpName, dest); err != nil {
		return fmt.Errorf("unpack output bundle: %w", err)
	}
	o.Logger().Info("output bundle retrieved", zap.String("bundle", remoteBundle))
	return nil
}

// packArchive builds a tar.gz of the given files, preserving relative paths,
// and returns the archive's path. The caller removes the file.
func packArchive(files []string) (string, error) {
	out, err := os.CreateTemp("", "offload-inputs-*.tar.gz")
	if err != nil {
		return "", err
	}

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	fail := func(err error) (string, error) {
		_ = tw.Close()
		_ = gz.Close()
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", err
	}

	for _, f := range files {
		in, err := os.Open(f)
		if err != nil {
			return fail(fmt.Errorf("open %s: %w", f, err))
		}
		info, err := in.Stat()
		if err != nil {
			_ = in.Close()
			return fail(fmt.Errorf("stat %s: %w", f, err))
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			_ = in.Close()
			return fail(err)
		}
		hdr.Name = remoteRelative(f)
		if err := tw.WriteHeader(hdr); err != nil {
			_ = in.Close()
			return fail(err)
		}
		if _, err := io.Copy(tw, in); err != nil {
			_ = in.Close()
			return fail(fmt.Errorf("archive %s: %w", f, err))
		}
		_ = in.Close()
	}

	if err := tw.Close(); err != nil {
		return fail(err)
	}
	if err := gz.Close(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// unpackArchive extracts a tar.gz into dest, rejecting entries that would
// escape it.
func unpackArchive(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(dest)+string(os.PathSeparator)) &&
			filepath.Clean(target) != filepath.Clean(dest) {
			return fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil { //nolint:gosec
				_ = out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			// Symlinks and specials are not expected in output bundles.
		}
	}
}
