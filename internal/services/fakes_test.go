package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/campusface/campusface/internal/db/models"
	syncpkg "github.com/campusface/campusface/internal/sync"
)

// ---------------------------------------------------------------------------
// Shared test fixtures
// ---------------------------------------------------------------------------

var (
	testNow         = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testLogger      = slog.New(slog.NewTextHandler(io.Discard, nil))
	uniqueViolation = &pq.Error{Code: "23505"}
)

func strptr(s string) *string { return &s }

// testPNG encodes a decodable image large enough to pass preprocessing
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for x := 0; x < 128; x++ {
		for y := 0; y < 128; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// ---------------------------------------------------------------------------
// codeStore fake
// ---------------------------------------------------------------------------

type fakeCodeStore struct {
	codes map[string]*models.AuthCode

	// createErrs is drained one error per Create call before storing
	createErrs []error

	invalidateByOwnerCalls int
	nextID                 int
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{codes: make(map[string]*models.AuthCode)}
}

func (f *fakeCodeStore) Create(_ context.Context, code *models.AuthCode) error {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if code.ID == "" {
		f.nextID++
		code.ID = fmt.Sprintf("code-%d", f.nextID)
	}
	stored := *code
	f.codes[code.ID] = &stored
	return nil
}

func (f *fakeCodeStore) GetByID(_ context.Context, id string) (*models.AuthCode, error) {
	code, ok := f.codes[id]
	if !ok {
		return nil, nil
	}
	copy := *code
	return &copy, nil
}

func (f *fakeCodeStore) GetValidByCode(_ context.Context, value string) (*models.AuthCode, error) {
	for _, code := range f.codes {
		if code.Code == value && code.Valid {
			copy := *code
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeCodeStore) List(_ context.Context) ([]*models.AuthCode, error) {
	out := make([]*models.AuthCode, 0, len(f.codes))
	for _, code := range f.codes {
		copy := *code
		out = append(out, &copy)
	}
	return out, nil
}

func (f *fakeCodeStore) Consume(_ context.Context, id string) (bool, error) {
	code, ok := f.codes[id]
	if !ok || !code.Valid {
		return false, nil
	}
	code.Valid = false
	return true, nil
}

func (f *fakeCodeStore) Invalidate(_ context.Context, id string) error {
	if code, ok := f.codes[id]; ok {
		code.Valid = false
	}
	return nil
}

func (f *fakeCodeStore) InvalidateByOwner(_ context.Context, userID, orgID string) error {
	f.invalidateByOwnerCalls++
	for _, code := range f.codes {
		if code.UserID == userID && code.OrganizationID == orgID {
			code.Valid = false
		}
	}
	return nil
}

func (f *fakeCodeStore) HasOtherValidForOwner(_ context.Context, userID, orgID, excludeID string) (bool, error) {
	for _, code := range f.codes {
		if code.ID != excludeID && code.UserID == userID && code.OrganizationID == orgID && code.Valid {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCodeStore) Update(_ context.Context, id string, valid bool, expirationTime time.Time) error {
	code, ok := f.codes[id]
	if !ok {
		return nil
	}
	code.Valid = valid
	code.ExpirationTime = expirationTime
	return nil
}

func (f *fakeCodeStore) Delete(_ context.Context, id string) error {
	delete(f.codes, id)
	return nil
}

// ---------------------------------------------------------------------------
// memberStore fake
// ---------------------------------------------------------------------------

type fakeMemberStore struct {
	// keyed by userID + "|" + orgID
	members map[string]*models.OrganizationMember

	createErr        error
	created          []*models.OrganizationMember
	faceImageUpdates map[string]string
	nextID           int
}

func newFakeMemberStore() *fakeMemberStore {
	return &fakeMemberStore{
		members:          make(map[string]*models.OrganizationMember),
		faceImageUpdates: make(map[string]string),
	}
}

func (f *fakeMemberStore) put(m *models.OrganizationMember) {
	f.members[m.UserID+"|"+m.OrganizationID] = m
}

func (f *fakeMemberStore) GetByUserAndOrg(_ context.Context, userID, orgID string) (*models.OrganizationMember, error) {
	member, ok := f.members[userID+"|"+orgID]
	if !ok {
		return nil, nil
	}
	copy := *member
	return &copy, nil
}

func (f *fakeMemberStore) CreateTx(_ context.Context, _ *sql.Tx, member *models.OrganizationMember) error {
	if f.createErr != nil {
		return f.createErr
	}
	if member.ID == "" {
		f.nextID++
		member.ID = fmt.Sprintf("member-%d", f.nextID)
	}
	stored := *member
	f.put(&stored)
	f.created = append(f.created, &stored)
	return nil
}

func (f *fakeMemberStore) UpdateFaceImageID(_ context.Context, memberID, faceImageID string) error {
	f.faceImageUpdates[memberID] = faceImageID
	for _, member := range f.members {
		if member.ID == memberID {
			member.FaceImageID = strptr(faceImageID)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// userStore fake
// ---------------------------------------------------------------------------

type fakeUserStore struct {
	users map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func (f *fakeUserStore) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

// ---------------------------------------------------------------------------
// orgStore fake
// ---------------------------------------------------------------------------

type roleDirectoryEntry struct {
	orgID  string
	userID string
	role   models.Role
}

type fakeOrgStore struct {
	orgs             map[string]*models.Organization
	directoryEntries []roleDirectoryEntry
}

func newFakeOrgStore() *fakeOrgStore {
	return &fakeOrgStore{orgs: make(map[string]*models.Organization)}
}

func (f *fakeOrgStore) GetByHubCode(_ context.Context, hubCode string) (*models.Organization, error) {
	org, ok := f.orgs[hubCode]
	if !ok {
		return nil, nil
	}
	copy := *org
	return &copy, nil
}

func (f *fakeOrgStore) AddToRoleDirectory(_ context.Context, _ *sql.Tx, orgID, userID string, role models.Role) error {
	f.directoryEntries = append(f.directoryEntries, roleDirectoryEntry{orgID: orgID, userID: userID, role: role})
	return nil
}

// ---------------------------------------------------------------------------
// entryStore fake
// ---------------------------------------------------------------------------

type fakeEntryStore struct {
	requests  map[string]*models.EntryRequest
	createErr error
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{requests: make(map[string]*models.EntryRequest)}
}

func (f *fakeEntryStore) Create(_ context.Context, req *models.EntryRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	stored := *req
	f.requests[req.ID] = &stored
	return nil
}

func (f *fakeEntryStore) GetByID(_ context.Context, id string) (*models.EntryRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	copy := *req
	return &copy, nil
}

func (f *fakeEntryStore) FindByOrgAndStatus(_ context.Context, orgID string, status models.RequestStatus) ([]*models.EntryRequest, error) {
	var out []*models.EntryRequest
	for _, req := range f.requests {
		if req.OrganizationID == orgID && req.Status == status {
			copy := *req
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (f *fakeEntryStore) FindByUserID(_ context.Context, userID string) ([]*models.EntryRequest, error) {
	var out []*models.EntryRequest
	for _, req := range f.requests {
		if req.UserID == userID {
			copy := *req
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (f *fakeEntryStore) UpdateStatusTx(_ context.Context, _ *sql.Tx, id string, status models.RequestStatus) error {
	if req, ok := f.requests[id]; ok {
		req.Status = status
	}
	return nil
}

func (f *fakeEntryStore) UpdateStatus(_ context.Context, id string, status models.RequestStatus) error {
	if req, ok := f.requests[id]; ok {
		req.Status = status
	}
	return nil
}

func (f *fakeEntryStore) UpdateRole(_ context.Context, id string, role models.Role) error {
	if req, ok := f.requests[id]; ok {
		req.Role = role
	}
	return nil
}

func (f *fakeEntryStore) Delete(_ context.Context, id string) error {
	delete(f.requests, id)
	return nil
}

// ---------------------------------------------------------------------------
// changeStore fake
// ---------------------------------------------------------------------------

type fakeChangeStore struct {
	requests  map[string]*models.ChangeRequest
	createErr error
}

func newFakeChangeStore() *fakeChangeStore {
	return &fakeChangeStore{requests: make(map[string]*models.ChangeRequest)}
}

func (f *fakeChangeStore) Create(_ context.Context, req *models.ChangeRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	stored := *req
	f.requests[req.ID] = &stored
	return nil
}

func (f *fakeChangeStore) GetByID(_ context.Context, id string) (*models.ChangeRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	copy := *req
	return &copy, nil
}

func (f *fakeChangeStore) FindByOrgAndStatus(_ context.Context, orgID string, status models.RequestStatus) ([]*models.ChangeRequest, error) {
	var out []*models.ChangeRequest
	for _, req := range f.requests {
		if req.OrganizationID == orgID && req.Status == status {
			copy := *req
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (f *fakeChangeStore) FindByUserID(_ context.Context, userID string) ([]*models.ChangeRequest, error) {
	var out []*models.ChangeRequest
	for _, req := range f.requests {
		if req.UserID == userID {
			copy := *req
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (f *fakeChangeStore) UpdateStatus(_ context.Context, id string, status models.RequestStatus) error {
	if req, ok := f.requests[id]; ok {
		req.Status = status
	}
	return nil
}

func (f *fakeChangeStore) UpdateImage(_ context.Context, id, newFaceImageID string) error {
	if req, ok := f.requests[id]; ok {
		req.NewFaceImageID = newFaceImageID
	}
	return nil
}

func (f *fakeChangeStore) Delete(_ context.Context, id string) error {
	delete(f.requests, id)
	return nil
}

// ---------------------------------------------------------------------------
// images.Host fake
// ---------------------------------------------------------------------------

type fakeImageHost struct {
	uploads map[string][]byte
	deleted []string

	uploadErr error
	signErr   error
}

func newFakeImageHost() *fakeImageHost {
	return &fakeImageHost{uploads: make(map[string][]byte)}
}

func (f *fakeImageHost) Upload(_ context.Context, key string, data []byte) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeImageHost) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.uploads, key)
	return nil
}

func (f *fakeImageHost) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://img.example/" + key, nil
}

func (f *fakeImageHost) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.uploads[key]
	return ok, nil
}

// ---------------------------------------------------------------------------
// sync.Publisher fake
// ---------------------------------------------------------------------------

// fakePublisher records sync events. Approvals publish from a goroutine, so
// tests wait on the notify channel instead of sleeping.
type fakePublisher struct {
	mu     sync.Mutex
	events []syncpkg.MemberSyncEvent
	notify chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{notify: make(chan struct{}, 8)}
}

func (f *fakePublisher) PublishMemberSync(_ context.Context, event syncpkg.MemberSyncEvent) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	f.notify <- struct{}{}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

// waitForEvent blocks until one event has been published
func (f *fakePublisher) waitForEvent(t *testing.T) syncpkg.MemberSyncEvent {
	t.Helper()
	select {
	case <-f.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync event")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[len(f.events)-1]
}

func (f *fakePublisher) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
