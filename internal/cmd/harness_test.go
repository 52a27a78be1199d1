package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/cloudkit/pkg/output"
	"github.com/3leaps/cloudkit/pkg/storage"
)

// fakeStore backs every client the fake factory hands out, so state
// survives across command invocations within a test.
type fakeStore struct {
	mu         sync.Mutex
	containers map[string]map[string][]byte
	opened     []storage.Options
}

func newFakeStore(containers ...string) *fakeStore {
	s := &fakeStore{containers: make(map[string]map[string][]byte)}
	for _, c := range containers {
		s.containers[c] = make(map[string][]byte)
	}
	return s
}

func (s *fakeStore) put(container, name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[container][name] = []byte(content)
}

func (s *fakeStore) has(container, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.containers[container][name]
	return ok
}

type fakeClient struct {
	store *fakeStore
	opts  storage.Options
}

func (c *fakeClient) missing(op, container, file string, kind error) error {
	return &storage.Error{
		Op:        op,
		Provider:  storage.ProviderType(c.opts.Provider),
		Container: container,
		File:      file,
		Kind:      kind,
		Status:    404,
		Err:       kind,
	}
}

func (c *fakeClient) Provider() storage.ProviderType { return storage.ProviderType(c.opts.Provider) }
func (c *fakeClient) Close() error                   { return nil }

func (c *fakeClient) GetContainers(context.Context) ([]*storage.Container, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	names := make([]string, 0, len(c.store.containers))
	for n := range c.store.containers {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*storage.Container, 0, len(names))
	for _, n := range names {
		out = append(out, storage.NewContainer(n))
	}
	return out, nil
}

func (c *fakeClient) GetContainer(ctx context.Context, ref storage.ContainerRef) (*storage.Container, error) {
	res, err := c.GetFiles(ctx, ref, storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	return storage.NewContainerFromListing(storage.Listing{Name: ref.Name(), Contents: res.Files}), nil
}

func (c *fakeClient) CreateContainer(_ context.Context, ref storage.ContainerRef) (*storage.Container, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.containers[ref.Name()] = make(map[string][]byte)
	return ref.Model(), nil
}

func (c *fakeClient) DestroyContainer(_ context.Context, ref storage.ContainerRef) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if _, ok := c.store.containers[ref.Name()]; !ok {
		return c.missing("DestroyContainer", ref.Name(), "", storage.ErrBucketNotFound)
	}
	delete(c.store.containers, ref.Name())
	return nil
}

func (c *fakeClient) RemoveFile(_ context.Context, ref storage.ContainerRef, file storage.FileRef) (bool, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	files, ok := c.store.containers[ref.Name()]
	if !ok {
		return false, c.missing("RemoveFile", ref.Name(), file.Name(), storage.ErrBucketNotFound)
	}
	delete(files, file.Name())
	return false, nil
}

func (c *fakeClient) Upload(ctx context.Context, opts storage.UploadOptions) *storage.Upload {
	return storage.StartUpload(ctx, func(_ context.Context, body io.Reader) (*storage.File, error) {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		c.store.mu.Lock()
		defer c.store.mu.Unlock()
		files, ok := c.store.containers[opts.Container.Name()]
		if !ok {
			return nil, c.missing("Upload", opts.Container.Name(), opts.Remote.Name(), storage.ErrBucketNotFound)
		}
		files[opts.Remote.Name()] = data
		return &storage.File{
			Name:        opts.Remote.Name(),
			Container:   opts.Container.Model(),
			Size:        int64(len(data)),
			ContentType: opts.ContentType,
		}, nil
	})
}

func (c *fakeClient) Download(_ context.Context, opts storage.DownloadOptions) (io.ReadCloser, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	data, ok := c.store.containers[opts.Container.Name()][opts.Remote.Name()]
	if !ok {
		return nil, c.missing("Download", opts.Container.Name(), opts.Remote.Name(), storage.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *fakeClient) GetFile(_ context.Context, ref storage.ContainerRef, name string) (*storage.File, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	data, ok := c.store.containers[ref.Name()][name]
	if !ok {
		return nil, c.missing("GetFile", ref.Name(), name, storage.ErrNotFound)
	}
	return &storage.File{
		Name:         name,
		Container:    ref.Model(),
		Size:         int64(len(data)),
		ETag:         "etag-" + name,
		LastModified: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (c *fakeClient) GetFiles(_ context.Context, ref storage.ContainerRef, opts storage.ListOptions) (*storage.ListResult, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	files, ok := c.store.containers[ref.Name()]
	if !ok {
		return nil, c.missing("GetFiles", ref.Name(), "", storage.ErrBucketNotFound)
	}
	names := make([]string, 0, len(files))
	for n := range files {
		if strings.HasPrefix(n, opts.Prefix) && n > opts.Marker {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	res := &storage.ListResult{Page: storage.Page{Marker: opts.Marker}}
	if opts.MaxKeys > 0 && len(names) > opts.MaxKeys {
		names = names[:opts.MaxKeys]
		res.Page.IsTruncated = true
	}
	cont := ref.Model()
	for _, n := range names {
		res.Files = append(res.Files, &storage.File{
			Name:         n,
			Container:    cont,
			Size:         int64(len(files[n])),
			LastModified: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return res, nil
}

func (c *fakeClient) SignedURL(_ context.Context, ref storage.ContainerRef, file storage.FileRef) (string, error) {
	if !c.opts.SignedURL.Enabled {
		return "", &storage.Error{Op: "SignedURL", Kind: storage.ErrSignedURLDisabled, Err: storage.ErrSignedURLDisabled}
	}
	return "https://signed.example/" + ref.Name() + "/" + file.Name(), nil
}

// useFakeStore routes every client construction to store.
func useFakeStore(t *testing.T, store *fakeStore) {
	t.Helper()
	orig := newStorageClient
	newStorageClient = func(_ context.Context, opts storage.Options) (storage.Client, error) {
		store.mu.Lock()
		store.opened = append(store.opened, opts)
		store.mu.Unlock()
		return &fakeClient{store: store, opts: opts}, nil
	}
	t.Cleanup(func() { newStorageClient = orig })
}

type result struct {
	code   int
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// runCLI executes the root command in an isolated working directory and
// home, with every flag back at its default.
func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	isolateEnv(t)
	return runCLIWithInput(t, nil, args...)
}

func runCLIWithInput(t *testing.T, stdin io.Reader, args ...string) result {
	t.Helper()
	return runCLIContext(t, context.Background(), stdin, args...)
}

func runCLIContext(t *testing.T, ctx context.Context, stdin io.Reader, args ...string) result {
	t.Helper()
	resetFlags(rootCmd)

	res := result{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	rootCmd.SetOut(res.stdout)
	rootCmd.SetErr(res.stderr)
	if stdin != nil {
		rootCmd.SetIn(stdin)
	}
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	res.code = Execute(ctx)
	return res
}

func isolateEnv(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Chdir(t.TempDir())
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// records parses JSONL output.
func records(t *testing.T, r io.Reader) []output.Record {
	t.Helper()
	var out []output.Record
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec), "line: %s", sc.Text())
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func ofType(recs []output.Record, typ string) []output.Record {
	var out []output.Record
	for _, r := range recs {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func payload[T any](t *testing.T, rec output.Record) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Data, &v))
	return v
}
