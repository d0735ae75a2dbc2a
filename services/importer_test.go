package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"feedsync/config"
	"feedsync/events"
	"feedsync/feed"
	"feedsync/identity"
	"feedsync/models"
	"feedsync/storage"
	"feedsync/workers"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (m *memoryStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type published struct {
	key     string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{routingKey, payload})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// take returns the recorded events and clears the log.
func (p *recordingPublisher) take() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	got := p.events
	p.events = nil
	return got
}

// feedServer serves whatever body the test last set.
type feedServer struct {
	*httptest.Server
	mu     sync.Mutex
	body   string
	status int
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{status: http.StatusOK}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if strings.HasPrefix(fs.body, "{") {
			w.Header().Set("Content-Type", "application/json")
		} else {
			w.Header().Set("Content-Type", "application/xml")
		}
		w.WriteHeader(fs.status)
		io.WriteString(w, fs.body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) set(status int, body string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.status = status
	fs.body = body
}

func photoServer(t *testing.T) *httptest.Server {
	t.Helper()
	encode := func(c color.Color) []byte {
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for x := 0; x < 8; x++ {
			for y := 0; y < 8; y++ {
				img.Set(x, y, c)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("encode png: %v", err)
		}
		return buf.Bytes()
	}
	photos := map[string][]byte{
		"/red.png":   encode(color.RGBA{R: 255, A: 255}),
		"/blue.png":  encode(color.RGBA{B: 255, A: 255}),
		"/green.png": encode(color.RGBA{G: 255, A: 255}),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := photos[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type listing struct {
	ref       string
	title     string
	price     string
	updated   string
	amenities string
	photos    []string
}

func feedXML(listings ...listing) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><list>`)
	for _, l := range listings {
		fmt.Fprintf(&b, `<property last_update=%q>`, l.updated)
		fmt.Fprintf(&b, `<reference_number>%s</reference_number>`, l.ref)
		fmt.Fprintf(&b, `<title_en>%s</title_en>`, l.title)
		fmt.Fprintf(&b, `<price>%s</price>`, l.price)
		b.WriteString(`<bedroom>3</bedroom><bathroom>2</bathroom>`)
		b.WriteString(`<community>Palm Jumeirah</community><city>Dubai</city>`)
		b.WriteString(`<agent><name>Sara Khan</name><email>sara@example.com</email></agent>`)
		if l.amenities != "" {
			fmt.Fprintf(&b, `<amenities>%s</amenities>`, l.amenities)
		}
		if len(l.photos) > 0 {
			b.WriteString(`<photo>`)
			for _, p := range l.photos {
				fmt.Fprintf(&b, `<url watermark="yes">%s</url>`, p)
			}
			b.WriteString(`</photo>`)
		}
		b.WriteString(`</property>`)
	}
	b.WriteString(`</list>`)
	return b.String()
}

type harness struct {
	store    *storage.SQLiteStore
	objects  *memoryStorage
	images   *workers.ImagePipeline
	importer *Importer
	feed     *feedServer
	photos   *httptest.Server
	events   *recordingPublisher
	cfg      *config.FeedConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "feedsync.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	objects := &memoryStorage{objects: make(map[string][]byte)}
	images := workers.NewImagePipeline(nil, objects, config.ImageConfig{BatchSize: 2, MaxWidth: 64, Quality: 80}, "properties", logger)

	fs := newFeedServer(t)
	cfg := config.DefaultFeed("agency", fs.URL)
	cfg.ReferencePrefix = "DXB-"
	publisher := &recordingPublisher{}

	return &harness{
		store:    store,
		objects:  objects,
		images:   images,
		importer: NewImporter(store, feed.NewFetcher(fs.Client()), images, publisher, logger),
		feed:     fs,
		photos:   photoServer(t),
		events:   publisher,
		cfg:      cfg,
	}
}

func (h *harness) run(t *testing.T, body string) *Result {
	t.Helper()
	h.feed.set(http.StatusOK, body)
	res, err := h.importer.Run(context.Background(), h.cfg)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	h.images.Wait()
	return res
}

func (h *harness) property(t *testing.T, ref string) *models.Property {
	t.Helper()
	p, err := h.store.GetPropertyByReference(context.Background(), ref)
	if err != nil {
		t.Fatalf("get %s: %v", ref, err)
	}
	return p
}

func TestImporter_CreateSkipUpdate(t *testing.T) {
	h := newHarness(t)
	villa := listing{ref: "RS-1", title: "Frond Villa", price: "AED 25,000,000", updated: "05/02/2024 08:15:00"}
	flat := listing{ref: "RS-2", title: "Marina Flat", price: "180000", updated: "04/30/2024 18:00:00"}

	res := h.run(t, feedXML(villa, flat))
	if !res.Success || res.Imported != 2 || res.Updated != 0 || res.Failed != 0 {
		t.Fatalf("unexpected first result %+v", res)
	}

	p := h.property(t, "DXB-RS-1")
	if p == nil {
		t.Fatal("expected DXB-RS-1 to be stored with the feed prefix")
	}
	if !p.IsLuxe || p.Status != models.PropertyStatusPublished || p.Slug != identity.Slug("Frond Villa", "DXB-RS-1") {
		t.Fatalf("unexpected property %+v", p)
	}
	if p.Price != 25000000 || p.AgentID == nil || p.CommunityID == nil {
		t.Fatalf("fields not applied: %+v", p)
	}
	if want := time.Date(2024, 5, 2, 8, 15, 0, 0, time.UTC); !p.LastUpdated.Equal(want) {
		t.Fatalf("expected last_updated %v, got %v", want, p.LastUpdated)
	}
	if h.property(t, "DXB-RS-2").IsLuxe {
		t.Fatal("flat must not be luxury")
	}

	res = h.run(t, feedXML(villa, flat))
	if res.Imported != 0 || res.Updated != 0 || res.Stats.Skipped != 2 {
		t.Fatalf("expected both records skipped, got %+v", res.Stats)
	}

	flat.updated = "05/03/2024 09:00:00"
	flat.title = "Marina Flat Renovated"
	res = h.run(t, feedXML(villa, flat))
	if res.Updated != 1 || res.Stats.Skipped != 1 {
		t.Fatalf("expected one update, got %+v", res.Stats)
	}
	updated := h.property(t, "DXB-RS-2")
	if updated.Title != "Marina Flat Renovated" {
		t.Fatalf("title not updated: %q", updated.Title)
	}
	if updated.Slug != identity.Slug("Marina Flat", "DXB-RS-2") {
		t.Fatalf("slug must survive updates, got %q", updated.Slug)
	}

	jobs, err := h.store.ListImportJobs(context.Background(), 10)
	if err != nil || len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d (%v)", len(jobs), err)
	}
	for _, j := range jobs {
		if j.Status != models.JobStatusCompleted || j.FinishedAt == nil {
			t.Fatalf("unexpected job %+v", j)
		}
	}
}

func TestImporter_InvalidRecordIsCountedAsFailed(t *testing.T) {
	h := newHarness(t)
	good := listing{ref: "RS-1", title: "Flat", price: "900000", updated: "05/02/2024 08:15:00"}
	bad := listing{ref: "RS-2", title: "Flat", price: "call us", updated: "05/02/2024 08:15:00"}

	res := h.run(t, feedXML(good, bad))
	if !res.Success || res.Imported != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.property(t, "DXB-RS-2") != nil {
		t.Fatal("invalid record must not be stored")
	}

	job, err := h.store.GetImportJob(context.Background(), res.JobID)
	if err != nil || job == nil {
		t.Fatalf("get job: %v", err)
	}
	if job.FailedCount != 1 || len(job.FailedProperties) != 1 {
		t.Fatalf("unexpected job %+v", job)
	}
	fp := job.FailedProperties[0]
	if fp.ReferenceNumber != "RS-2" || len(fp.Errors) == 0 || !strings.HasPrefix(fp.Errors[0], "price") {
		t.Fatalf("unexpected failed property %+v", fp)
	}
}

func TestImporter_LuxuryImagesAndReplacement(t *testing.T) {
	h := newHarness(t)
	villa := listing{
		ref:     "RS-1",
		title:   "Frond Villa",
		price:   "30000000",
		updated: "05/02/2024 08:15:00",
		photos:  []string{h.photos.URL + "/red.png", h.photos.URL + "/missing.png", h.photos.URL + "/blue.png"},
	}
	flat := listing{
		ref:     "RS-2",
		title:   "Flat",
		price:   "900000",
		updated: "05/02/2024 08:15:00",
		photos:  []string{h.photos.URL + "/green.png"},
	}

	res := h.run(t, feedXML(villa, flat))
	if res.Stats.ImagesUploaded != 2 || res.Stats.ImagesFailed != 1 {
		t.Fatalf("unexpected image counts %+v", res.Stats)
	}

	ctx := context.Background()
	p := h.property(t, "DXB-RS-1")
	imgs, err := h.store.ListPropertyImages(ctx, p.ID)
	if err != nil || len(imgs) != 2 {
		t.Fatalf("expected 2 stored images, got %d (%v)", len(imgs), err)
	}
	if imgs[0].Order != 0 || imgs[1].Order != 1 || imgs[1].SourceURL != villa.photos[2] {
		t.Fatalf("unexpected image order %+v", imgs)
	}
	if flatImgs, _ := h.store.ListPropertyImages(ctx, h.property(t, "DXB-RS-2").ID); len(flatImgs) != 0 {
		t.Fatal("non-luxury listings get no images")
	}

	redKey := imgs[0].StorageKey
	villa.updated = "05/04/2024 08:15:00"
	villa.photos = []string{h.photos.URL + "/blue.png"}
	h.run(t, feedXML(villa, flat))

	imgs, _ = h.store.ListPropertyImages(ctx, p.ID)
	if len(imgs) != 1 || imgs[0].SourceURL != villa.photos[0] {
		t.Fatalf("images not replaced: %+v", imgs)
	}
	h.objects.mu.Lock()
	defer h.objects.mu.Unlock()
	if _, ok := h.objects.objects[redKey]; ok {
		t.Fatal("replaced image object must be deleted")
	}
	if _, ok := h.objects.objects[imgs[0].StorageKey]; !ok {
		t.Fatal("reused image object must be kept")
	}
}

func TestImporter_LinksKnownAmenities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, name := range []string{"Private Pool", "Sea View", "Maids Room"} {
		if _, err := h.store.FindOrCreateLookup(ctx, models.LookupAmenity, name); err != nil {
			t.Fatalf("seed amenity: %v", err)
		}
	}

	villa := listing{ref: "RS-1", title: "Villa", price: "900000", updated: "05/02/2024 08:15:00", amenities: "private pool, Sea  View, Helipad, Private Pool"}
	res := h.run(t, feedXML(villa))
	if res.Stats.AmenitiesLinked != 2 {
		t.Fatalf("expected 2 amenities linked, got %d", res.Stats.AmenitiesLinked)
	}

	linked, err := h.store.ListPropertyAmenities(ctx, h.property(t, "DXB-RS-1").ID)
	if err != nil || len(linked) != 2 {
		t.Fatalf("unexpected links %v (%v)", linked, err)
	}

	villa.updated = "05/03/2024 08:15:00"
	villa.amenities = "Maids Room"
	h.run(t, feedXML(villa))
	linked, _ = h.store.ListPropertyAmenities(ctx, h.property(t, "DXB-RS-1").ID)
	if len(linked) != 1 || linked[0].Name != "Maids Room" {
		t.Fatalf("links must be replaced on update, got %v", linked)
	}
}

func TestImporter_ReapsMissingProperties(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := listing{ref: "RS-1", title: "Villa One", price: "900000", updated: "05/02/2024 08:15:00"}
	b := listing{ref: "RS-2", title: "Villa Two", price: "900000", updated: "05/02/2024 08:15:00"}

	h.run(t, feedXML(a, b))
	gone := h.property(t, "DXB-RS-2")

	res := h.run(t, feedXML(a))
	if res.Stats.Deleted != 1 || res.Stats.Redirects != 1 || res.Stats.CleanupSkipped != "" {
		t.Fatalf("unexpected cleanup stats %+v", res.Stats)
	}
	if h.property(t, "DXB-RS-2") != nil {
		t.Fatal("missing property must be deleted")
	}
	if h.property(t, "DXB-RS-1") == nil {
		t.Fatal("present property must be kept")
	}

	r, err := h.store.GetRedirect(ctx, identity.PublicPath(gone.Slug))
	if err != nil || r == nil {
		t.Fatalf("expected redirect for %s (%v)", gone.Slug, err)
	}
	if r.ToPath != config.DefaultFallbackRedirect || r.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("unexpected redirect %+v", r)
	}

	job, _ := h.store.GetImportJob(ctx, res.JobID)
	if job.DeletedCount != 1 {
		t.Fatalf("expected deleted_count 1, got %d", job.DeletedCount)
	}
}

func TestImporter_TruncatedFeedSkipsCleanup(t *testing.T) {
	h := newHarness(t)
	var all []listing
	for i := 1; i <= 4; i++ {
		all = append(all, listing{ref: fmt.Sprintf("RS-%d", i), title: "Villa", price: "900000", updated: "05/02/2024 08:15:00"})
	}
	h.run(t, feedXML(all...))

	res := h.run(t, feedXML(all[0]))
	if res.Stats.Deleted != 0 || res.Stats.CleanupSkipped == "" {
		t.Fatalf("expected cleanup to be skipped, got %+v", res.Stats)
	}
	if n, _ := h.store.CountProperties(context.Background(), "agency"); n != 4 {
		t.Fatalf("expected 4 properties kept, got %d", n)
	}

	res = h.run(t, `{"list": {"property": []}}`)
	if res.Stats.Deleted != 0 || res.Stats.CleanupSkipped == "" {
		t.Fatalf("empty feed must not delete anything, got %+v", res.Stats)
	}
}

func TestImporter_FatalErrorsFailTheJob(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	tests := []struct {
		name   string
		status int
		body   string
		url    string
		check  func(error) bool
	}{
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   "oops",
			check: func(err error) bool {
				var fe *feed.FetchError
				return errors.As(err, &fe) && fe.StatusCode == http.StatusInternalServerError
			},
		},
		{
			name:   "wrong shape",
			status: http.StatusOK,
			body:   `{"items": []}`,
			check: func(err error) bool {
				var pe *feed.ParseError
				return errors.As(err, &pe)
			},
		},
		{
			name: "unreachable host",
			url:  closed.URL,
			check: func(err error) bool {
				var fe *feed.FetchError
				return errors.As(err, &fe) && fe.StatusCode == 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			villa := listing{ref: "RS-1", title: "Villa", price: "900000", updated: "05/02/2024 08:15:00"}
			h.run(t, feedXML(villa))
			before := h.property(t, "DXB-RS-1")

			h.feed.set(tt.status, tt.body)
			if tt.url != "" {
				h.cfg.URL = tt.url
			}

			res, err := h.importer.Run(ctx, h.cfg)
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if res == nil || res.Success {
				t.Fatalf("expected failed result, got %+v", res)
			}

			job, _ := h.store.GetImportJob(ctx, res.JobID)
			if job == nil || job.Status != models.JobStatusFailed || job.ErrorMessage == "" {
				t.Fatalf("unexpected job %+v", job)
			}

			if n, _ := h.store.CountProperties(ctx, "agency"); n != 1 {
				t.Fatalf("a failed pull must not touch stored properties, got %d rows", n)
			}
			after := h.property(t, "DXB-RS-1")
			if after == nil || !after.UpdatedAt.Equal(before.UpdatedAt) {
				t.Fatalf("property changed by a failed pull: %+v", after)
			}
		})
	}
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) (*feed.Document, error) {
	close(f.started)
	<-f.release
	return &feed.Document{}, nil
}

func TestImporter_RejectsOverlappingRuns(t *testing.T) {
	h := newHarness(t)
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	im := NewImporter(h.store, fetcher, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() {
		_, err := im.Run(context.Background(), h.cfg)
		done <- err
	}()
	<-fetcher.started

	if !im.Running(h.cfg.ID) {
		t.Fatal("expected feed to be marked running")
	}
	if _, err := im.Run(context.Background(), h.cfg); !errors.Is(err, ErrImportRunning) {
		t.Fatalf("expected ErrImportRunning, got %v", err)
	}

	close(fetcher.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if im.Running(h.cfg.ID) {
		t.Fatal("lock must be released")
	}
}

func TestImporter_PriceChangeUpdatesInPlace(t *testing.T) {
	h := newHarness(t)
	villa := listing{ref: "RS-1", title: "Villa", price: "25000000", updated: "05/02/2024 08:15:00"}
	h.run(t, feedXML(villa))

	villa.price = "30000000"
	villa.updated = "05/03/2024 08:15:00"
	res := h.run(t, feedXML(villa))
	if res.Updated != 1 || res.Imported != 0 {
		t.Fatalf("expected an in-place update, got %+v", res.Stats)
	}

	p := h.property(t, "DXB-RS-1")
	if p.Price != 30000000 || !p.IsLuxe {
		t.Fatalf("unexpected property %+v", p)
	}
	if n, _ := h.store.CountProperties(context.Background(), "agency"); n != 1 {
		t.Fatalf("expected exactly 1 row, got %d", n)
	}
}

func TestImporter_AllPhotosFailingKeepsProperty(t *testing.T) {
	h := newHarness(t)
	villa := listing{
		ref:     "RS-1",
		title:   "Villa",
		price:   "25000000",
		updated: "05/02/2024 08:15:00",
		photos:  []string{h.photos.URL + "/gone-1.jpg", h.photos.URL + "/gone-2.jpg"},
	}
	other := listing{ref: "RS-2", title: "Flat", price: "900000", updated: "05/02/2024 08:15:00"}

	res := h.run(t, feedXML(villa, other))
	if !res.Success || res.Imported != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Stats.ImagesFailed != 2 || res.Stats.ImagesUploaded != 0 {
		t.Fatalf("unexpected image counts %+v", res.Stats)
	}

	imgs, err := h.store.ListPropertyImages(context.Background(), h.property(t, "DXB-RS-1").ID)
	if err != nil || len(imgs) != 0 {
		t.Fatalf("expected no image rows, got %d (%v)", len(imgs), err)
	}
}

func TestImporter_RepeatedReferenceLastWins(t *testing.T) {
	h := newHarness(t)
	first := listing{ref: "RS-1", title: "First", price: "900000", updated: "05/02/2024 08:15:00"}
	second := listing{ref: "RS-1", title: "Second", price: "950000", updated: "05/02/2024 08:15:00"}

	res := h.run(t, feedXML(first, second))
	if res.Imported != 1 || res.Updated != 1 || res.Stats.Skipped != 0 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
	if len(res.Stats.Duplicates) != 1 {
		t.Fatalf("expected the duplicate to be reported, got %+v", res.Stats.Duplicates)
	}

	p := h.property(t, "DXB-RS-1")
	if p.Title != "Second" || p.Price != 950000 {
		t.Fatalf("expected the last entry to win, got %q %d", p.Title, p.Price)
	}
	if p.Slug != identity.Slug("First", "DXB-RS-1") {
		t.Fatalf("slug comes from the insert, got %q", p.Slug)
	}
}

func TestImporter_ReturningListingDropsRedirect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := listing{ref: "RS-1", title: "Villa One", price: "900000", updated: "05/02/2024 08:15:00"}
	b := listing{ref: "RS-2", title: "Villa Two", price: "900000", updated: "05/02/2024 08:15:00"}

	h.run(t, feedXML(a, b))
	path := identity.PublicPath(h.property(t, "DXB-RS-2").Slug)

	h.run(t, feedXML(a))
	if r, _ := h.store.GetRedirect(ctx, path); r == nil {
		t.Fatalf("expected redirect for %s after reap", path)
	}

	res := h.run(t, feedXML(a, b))
	if res.Imported != 1 {
		t.Fatalf("expected the listing to be re-created, got %+v", res.Stats)
	}
	back := h.property(t, "DXB-RS-2")
	if back == nil || identity.PublicPath(back.Slug) != path {
		t.Fatalf("expected the old slug back, got %+v", back)
	}
	if r, err := h.store.GetRedirect(ctx, path); err != nil || r != nil {
		t.Fatalf("live listing must not be redirected, got %+v (%v)", r, err)
	}
}

func TestImporter_UndatedInsertTakesFirstDatedVersion(t *testing.T) {
	h := newHarness(t)
	villa := listing{ref: "RS-1", title: "Villa", price: "900000", updated: "sometime"}

	res := h.run(t, feedXML(villa))
	if res.Imported != 1 {
		t.Fatalf("undated record must still be inserted, got %+v", res.Stats)
	}

	villa.title = "Villa Dated"
	villa.updated = "01/15/2020 10:00:00"
	res = h.run(t, feedXML(villa))
	if res.Updated != 1 {
		t.Fatalf("expected the dated version to update, got %+v", res.Stats)
	}
	p := h.property(t, "DXB-RS-1")
	if p.Title != "Villa Dated" {
		t.Fatalf("title not updated: %q", p.Title)
	}
	if want := time.Date(2020, 1, 15, 10, 0, 0, 0, time.UTC); !p.LastUpdated.Equal(want) {
		t.Fatalf("expected last_updated %v, got %v", want, p.LastUpdated)
	}
}

func TestImporter_PublishesEvents(t *testing.T) {
	h := newHarness(t)
	a := listing{ref: "RS-1", title: "Villa One", price: "900000", updated: "05/02/2024 08:15:00"}
	b := listing{ref: "RS-2", title: "Villa Two", price: "900000", updated: "05/02/2024 08:15:00"}

	keys := func(got []published) []string {
		var out []string
		for _, e := range got {
			out = append(out, e.key)
		}
		return out
	}
	expect := func(got []published, want ...string) {
		t.Helper()
		if fmt.Sprint(keys(got)) != fmt.Sprint(want) {
			t.Fatalf("expected events %v, got %v", want, keys(got))
		}
	}

	res := h.run(t, feedXML(a, b))
	got := h.events.take()
	expect(got, events.PropertyCreated, events.PropertyCreated, events.ImportFinished)
	created := got[0].payload.(events.PropertyEvent)
	if created.ReferenceNumber != "DXB-RS-1" || created.Source != "agency" || created.Slug == "" {
		t.Fatalf("unexpected created event %+v", created)
	}
	finished := got[2].payload.(events.ImportEvent)
	if finished.JobID != res.JobID || finished.Status != string(models.JobStatusCompleted) || finished.Imported != 2 {
		t.Fatalf("unexpected finished event %+v", finished)
	}

	a.updated = "05/03/2024 08:15:00"
	h.run(t, feedXML(a))
	got = h.events.take()
	expect(got, events.PropertyUpdated, events.PropertyDeleted, events.ImportFinished)
	if deleted := got[1].payload.(events.PropertyEvent); deleted.ReferenceNumber != "DXB-RS-2" {
		t.Fatalf("unexpected deleted event %+v", deleted)
	}
	if finished := got[2].payload.(events.ImportEvent); finished.Updated != 1 || finished.Deleted != 1 {
		t.Fatalf("unexpected finished event %+v", finished)
	}

	h.feed.set(http.StatusBadGateway, "down")
	if _, err := h.importer.Run(context.Background(), h.cfg); err == nil {
		t.Fatal("expected the pull to fail")
	}
	got = h.events.take()
	expect(got, events.ImportFinished)
	if finished := got[0].payload.(events.ImportEvent); finished.Status != string(models.JobStatusFailed) {
		t.Fatalf("expected failed status, got %+v", finished)
	}
}
