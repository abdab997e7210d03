package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/logbook/internal/blob"
	"github.com/mesh-intelligence/logbook/pkg/logbook"
)

func newExportCmd(a *app) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every category and entry to a snapshot",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := snapshotFormat(format, out)
			if err != nil {
				return err
			}
			if blob.IsURL(out) {
				if _, err := blob.ParseURL(out); err != nil {
					return usageError{err}
				}
			}
			return a.withService(func(s *logbook.Service) error {
				snap, err := s.Export()
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := logbook.WriteSnapshot(&buf, snap, kind); err != nil {
					return err
				}
				switch {
				case out == "" || out == "-":
					_, err := cmd.OutOrStdout().Write(buf.Bytes())
					return err
				case blob.IsURL(out):
					if err := a.putObject(cmd.Context(), out, buf.Bytes(), contentTypes[kind]); err != nil {
						return err
					}
				default:
					if err := atomic.WriteFile(out, &buf); err != nil {
						return fmt.Errorf("write snapshot: %w", err)
					}
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d categories and %d entries to %s\n",
					len(snap.Categories), len(snap.Entries), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or cbor (default: from --out extension, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or s3://bucket/key (default: stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var format, file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a snapshot, replacing records with the same ids",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return usagef("--file is required")
			}
			kind, err := snapshotFormat(format, file)
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			switch {
			case file == "-":
			case blob.IsURL(file):
				rc, err := a.getObject(cmd.Context(), file)
				if err != nil {
					return err
				}
				defer rc.Close()
				r = rc
			default:
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open snapshot: %w", err)
				}
				defer f.Close()
				r = f
			}
			snap, err := logbook.ReadSnapshot(r, kind)
			if err != nil {
				return usageError{err}
			}
			return a.withService(func(s *logbook.Service) error {
				stats, err := s.Import(snap)
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), stats)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d categories and %d entries (%d skipped)\n",
					stats.Categories, stats.Entries, stats.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or cbor (default: from --file extension, else json)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot file, s3://bucket/key, or - for stdin")
	return cmd
}

var contentTypes = map[string]string{
	logbook.FormatJSON: "application/json",
	logbook.FormatCBOR: "application/cbor",
}

// blobStore connects to the bucket store named by the s3 config keys.
func (a *app) blobStore(ctx context.Context) (*blob.Store, error) {
	return blob.New(ctx, blob.Config{
		Region:    a.cfg.GetString(cfgKeyS3Region),
		Endpoint:  a.cfg.GetString(cfgKeyS3Endpoint),
		PathStyle: a.cfg.GetBool(cfgKeyS3PathStyle),
	})
}

func (a *app) putObject(ctx context.Context, raw string, data []byte, contentType string) error {
	loc, err := blob.ParseURL(raw)
	if err != nil {
		return usageError{err}
	}
	store, err := a.blobStore(ctx)
	if err != nil {
		return err
	}
	a.logger.Debug("uploading snapshot", "location", loc.String(), "bytes", len(data))
	return store.Put(ctx, loc, bytes.NewReader(data), contentType)
}

func (a *app) getObject(ctx context.Context, raw string) (io.ReadCloser, error) {
	loc, err := blob.ParseURL(raw)
	if err != nil {
		return nil, usageError{err}
	}
	store, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("downloading snapshot", "location", loc.String())
	return store.Get(ctx, loc)
}

// snapshotFormat picks the explicit format, else guesses from the file
// extension.
func snapshotFormat(format, path string) (string, error) {
	switch strings.ToLower(format) {
	case logbook.FormatJSON:
		return logbook.FormatJSON, nil
	case logbook.FormatCBOR:
		return logbook.FormatCBOR, nil
	case "":
		if strings.EqualFold(filepath.Ext(path), ".cbor") {
			return logbook.FormatCBOR, nil
		}
		return logbook.FormatJSON, nil
	}
	return "", usagef("--format %q: %w", format, logbook.ErrSnapshotFormat)
}

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Remove entries whose category no longer exists",
		Long: "Remove entries left behind by an interrupted category delete.\n" +
			"Safe to run at any time; a consistent store is left unchanged.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(func(s *logbook.Service) error {
				removed, err := s.Reconcile()
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]int{"entries_removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d dangling entries\n", removed)
				return nil
			})
		},
	}
}
