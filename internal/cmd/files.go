package cmd

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
	"github.com/3leaps/cloudkit/internal/observability"
	"github.com/3leaps/cloudkit/pkg/output"
	"github.com/3leaps/cloudkit/pkg/storage"
)

var statCmd = &cobra.Command{
	Use:   "stat <uri>",
	Short: "Show file metadata",
	Long: `Fetch file metadata without downloading the body.

Examples:
  cloudkit stat s3://reports/2024/summary.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

var putCmd = &cobra.Command{
	Use:   "put <local|-> <uri>",
	Short: "Upload a file",
	Long: `Upload a local file (or stdin with "-") through a managed multipart upload.

When the URI ends with "/", the local base name is appended. The content type
defaults to the one registered for the local file extension.

Examples:
  cloudkit put report.csv s3://reports/2024/
  tar cz dir | cloudkit put - minio://backups/dir.tgz --part-size 16MiB --queue-size 4
  cloudkit put index.html s3://site/index.html --acl public-read --cache-control max-age=60`,
	Args: cobra.ExactArgs(2),
	RunE: runPut,
}

var getCmd = &cobra.Command{
	Use:   "get <uri> [local|-]",
	Short: "Download a file",
	Long: `Download a file to a local path, or to stdout with "-". The local path
defaults to the file's base name in the current directory. When writing to
stdout no records are emitted.

Examples:
  cloudkit get s3://reports/2024/summary.csv
  cloudkit get minio://backups/dir.tgz - | tar xz`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

var rmCmd = &cobra.Command{
	Use:   "rm <uri>...",
	Short: "Remove files",
	Long: `Remove one or more files. On versioned containers the result reports
whether a delete marker was created.

Examples:
  cloudkit rm s3://reports/2024/old.csv minio://scratch/a minio://scratch/b`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

var signCmd = &cobra.Command{
	Use:   "sign <uri>",
	Short: "Create a presigned download URL",
	Long: `Create a time-limited download URL. Signing must be enabled with
storage.signed_url.enabled (or --enable); the lifetime is
storage.signed_url.cache_max_age seconds unless --expires is given.

Examples:
  cloudkit sign s3://reports/2024/summary.csv --enable --expires 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

var (
	putContentType     string
	putContentEncoding string
	putCacheControl    string
	putACL             string
	putSSE             string
	putQueueSize       int
	putPartSize        string

	signEnable  bool
	signExpires time.Duration
)

func init() {
	rootCmd.AddCommand(statCmd, putCmd, getCmd, rmCmd, signCmd)

	f := putCmd.Flags()
	f.StringVar(&putContentType, "content-type", "", "content type (default: by file extension)")
	f.StringVar(&putContentEncoding, "content-encoding", "", "content encoding, e.g. gzip")
	f.StringVar(&putCacheControl, "cache-control", "", "cache control header")
	f.StringVar(&putACL, "acl", "", "canned ACL, e.g. private or public-read")
	f.StringVar(&putSSE, "sse", "", "server-side encryption, e.g. AES256")
	f.IntVar(&putQueueSize, "queue-size", 0, "parts uploaded concurrently (0 = 1)")
	f.StringVar(&putPartSize, "part-size", "", "multipart chunk size, e.g. 8MiB (default 5MiB)")

	signCmd.Flags().BoolVar(&signEnable, "enable", false, "enable signing for this invocation")
	signCmd.Flags().DurationVar(&signExpires, "expires", 0, "URL lifetime (default: configured cache max age)")
}

// fileURI parses a URI that must name a single file.
func fileURI(arg string) (*ObjectURI, error) {
	u, err := parseArgURI(arg)
	if err != nil {
		return nil, err
	}
	if u.IsPattern() || u.IsPrefix() {
		return nil, exitError(apperrors.ExitInvalidArgument, "invalid URI",
			fmt.Errorf("%w: %s does not name a single file", ErrInvalidURI, arg))
	}
	return u, nil
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	u, err := fileURI(args[0])
	if err != nil {
		return err
	}

	client, err := openClient(ctx, u.Provider)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := newWriter(cmd, u.Provider)
	defer func() { _ = w.Close() }()

	f, err := client.GetFile(ctx, u.ContainerRef(), u.Key)
	if err != nil {
		return reportError(cmd, w, err)
	}
	return w.WriteFile(ctx, output.NewFileRecord(f))
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	local := args[0]

	u, err := parseArgURI(args[1])
	if err != nil {
		return err
	}
	if u.IsPattern() {
		return exitError(apperrors.ExitInvalidArgument, "invalid URI",
			fmt.Errorf("%w: upload target cannot be a glob", ErrInvalidURI))
	}
	name := u.Key
	if u.IsPrefix() {
		if local == "-" {
			return exitError(apperrors.ExitInvalidArgument, "invalid URI",
				fmt.Errorf("%w: stdin uploads need a file name", ErrInvalidURI))
		}
		name += filepath.Base(local)
	}

	opts := storage.UploadOptions{
		Container:            u.ContainerRef(),
		Remote:               storage.FileNamed(name),
		ContentType:          putContentType,
		ContentEncoding:      putContentEncoding,
		CacheControl:         putCacheControl,
		ACL:                  putACL,
		ServerSideEncryption: putSSE,
		QueueSize:            putQueueSize,
	}
	if opts.ContentType == "" && local != "-" {
		opts.ContentType = mime.TypeByExtension(filepath.Ext(local))
	}
	if putPartSize != "" {
		n, err := humanize.ParseBytes(putPartSize)
		if err != nil {
			return exitError(apperrors.ExitInvalidArgument, "invalid --part-size", err)
		}
		opts.PartSize = int64(n)
	}

	src, err := openLocal(cmd, local)
	if err != nil {
		code := apperrors.ExitFileRead
		if errors.Is(err, os.ErrNotExist) {
			code = apperrors.ExitNotFound
		}
		return exitError(code, "cannot open source", err)
	}
	defer func() { _ = src.Close() }()

	client, err := openClient(ctx, u.Provider)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := newWriter(cmd, u.Provider)
	defer func() { _ = w.Close() }()

	start := time.Now()
	up := client.Upload(ctx, opts)
	n, copyErr := io.Copy(up, src)
	if copyErr != nil {
		_ = up.CloseWithError(copyErr)
	} else {
		_ = up.Close()
	}

	f, err := up.Wait()
	if err != nil {
		return reportError(cmd, w, err)
	}
	if copyErr != nil {
		return reportError(cmd, w, copyErr)
	}

	observability.CLILogger.Debug("upload finished",
		zap.String("container", u.Container),
		zap.String("name", name),
		zap.String("bytes", humanize.IBytes(uint64(n))))

	if err := w.WriteFile(ctx, output.NewFileRecord(f)); err != nil {
		return err
	}
	return w.WriteTransfer(ctx, &output.TransferRecord{
		Op:        "upload",
		Container: u.Container,
		Name:      name,
		Bytes:     n,
		Duration:  time.Since(start),
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	u, err := fileURI(args[0])
	if err != nil {
		return err
	}

	dest := path.Base(u.Key)
	if len(args) == 2 {
		dest = args[1]
	}

	client, err := openClient(ctx, u.Provider)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	// Records go to stderr when stdout carries the data.
	w := newWriter(cmd, u.Provider)
	if stdoutIsData(dest) {
		w = newWriterTo(cmd.ErrOrStderr(), u.Provider)
	}
	defer func() { _ = w.Close() }()

	start := time.Now()
	body, err := client.Download(ctx, storage.DownloadOptions{
		Container: u.ContainerRef(),
		Remote:    storage.FileNamed(u.Key),
	})
	if err != nil {
		return reportError(cmd, w, err)
	}
	defer func() { _ = body.Close() }()

	if stdoutIsData(dest) {
		if _, err := io.Copy(cmd.OutOrStdout(), body); err != nil {
			return reportError(cmd, w, err)
		}
		return nil
	}

	n, err := writeLocal(dest, body)
	if err != nil {
		var pathErr *os.PathError
		var linkErr *os.LinkError
		if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
			_ = reportError(cmd, w, err)
			return exitError(apperrors.ExitFileWrite, "cannot write destination", err)
		}
		return reportError(cmd, w, err)
	}
	return w.WriteTransfer(ctx, &output.TransferRecord{
		Op:        "download",
		Container: u.Container,
		Name:      u.Key,
		Bytes:     n,
		Duration:  time.Since(start),
	})
}

// writeLocal writes r to a temporary file next to dest and renames it into
// place, so dest never holds a partial download.
func writeLocal(dest string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dest)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, err
	}
	return n, nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	uris := make([]*ObjectURI, 0, len(args))
	for _, arg := range args {
		u, err := fileURI(arg)
		if err != nil {
			return err
		}
		uris = append(uris, u)
	}

	clients := make(map[storage.ProviderType]storage.Client)
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	w := newWriter(cmd, uris[0].Provider)
	defer func() { _ = w.Close() }()

	var errs []error
	for _, u := range uris {
		client, ok := clients[u.Provider]
		if !ok {
			c, err := openClient(ctx, u.Provider)
			if err != nil {
				return err
			}
			clients[u.Provider], client = c, c
		}

		start := time.Now()
		marker, err := client.RemoveFile(ctx, u.ContainerRef(), storage.FileNamed(u.Key))
		if err != nil {
			errs = append(errs, reportError(cmd, w, err))
			continue
		}
		if err := w.WriteTransfer(ctx, &output.TransferRecord{
			Op:           "remove",
			Container:    u.Container,
			Name:         u.Key,
			DeleteMarker: marker,
			Duration:     time.Since(start),
		}); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func runSign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	u, err := fileURI(args[0])
	if err != nil {
		return err
	}

	opts := storageOptions(u.Provider)
	if signEnable {
		opts.SignedURL.Enabled = true
	}
	if signExpires > 0 {
		opts.SignedURL.CacheMaxAge = int((signExpires + time.Second - 1) / time.Second)
	}

	client, err := openClientWith(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	w := newWriter(cmd, u.Provider)
	defer func() { _ = w.Close() }()

	signer, ok := client.(storage.URLSigner)
	if !ok {
		return reportError(cmd, w, fmt.Errorf("%s: %w", u.Provider, storage.ErrSignedURLDisabled))
	}
	url, err := signer.SignedURL(ctx, u.ContainerRef(), storage.FileNamed(u.Key))
	if err != nil {
		return reportError(cmd, w, err)
	}

	maxAge := opts.SignedURL.CacheMaxAge
	if maxAge <= 0 {
		maxAge = storage.DefaultSignedURLMaxAge
	}
	return w.WriteSignedURL(ctx, &output.SignedURLRecord{
		Container: u.Container,
		Name:      u.Key,
		URL:       url,
		ExpiresIn: time.Duration(maxAge) * time.Second,
	})
}
