package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"expensync/internal/core"
)

const SchemeDrive = "drive"

// driveFiles is the subset of the Drive API the store needs.
type driveFiles interface {
	Create(ctx context.Context, name, folderID, mimeType string, r io.Reader) (string, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, fileID string) error
}

// DriveStore uploads photos into a Google Drive folder using a service
// account.
type DriveStore struct {
	files    driveFiles
	folderID string
}

// DriveCredentials reads service account JSON from inline content or a file.
func DriveCredentials(inlineJSON, file string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inlineJSON) != "":
		return []byte(inlineJSON), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

func NewDriveStore(ctx context.Context, credentialsJSON []byte, folderID string) (*DriveStore, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(newDriveHTTPClient(ctx, creds)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveStore{files: &driveService{svc: svc}, folderID: folderID}, nil
}

func newDriveHTTPClient(ctx context.Context, creds *google.Credentials) *http.Client {
	c := oauth2.NewClient(ctx, creds.TokenSource)
	c.Timeout = 60 * time.Second
	return c
}

func (s *DriveStore) Save(ctx context.Context, contentType string, r io.Reader) (string, error) {
	ext, err := Extension(contentType)
	if err != nil {
		return "", err
	}
	id, err := s.files.Create(ctx, uuid.NewString()+ext, s.folderID, contentType, r)
	if err != nil {
		return "", fmt.Errorf("upload photo to drive: %w", err)
	}
	return SchemeDrive + ":" + id, nil
}

func (s *DriveStore) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	id, err := driveID(ref)
	if err != nil {
		return nil, "", err
	}
	rc, ct, err := s.files.Download(ctx, id)
	if err != nil {
		if isDriveNotFound(err) {
			return nil, "", core.ErrNotFound
		}
		return nil, "", fmt.Errorf("download photo from drive: %w", err)
	}
	return rc, ct, nil
}

func (s *DriveStore) Delete(ctx context.Context, ref string) error {
	id, err := driveID(ref)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, id); err != nil && !isDriveNotFound(err) {
		return fmt.Errorf("delete photo from drive: %w", err)
	}
	return nil
}

func driveID(ref string) (string, error) {
	scheme, key, err := SplitRef(ref)
	if err != nil {
		return "", err
	}
	if scheme != SchemeDrive {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return key, nil
}

func isDriveNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

type driveService struct {
	svc *drive.Service
}

func (d *driveService) Create(ctx context.Context, name, folderID, mimeType string, r io.Reader) (string, error) {
	meta := &drive.File{Name: name, MimeType: mimeType}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}
	f, err := d.svc.Files.Create(meta).
		Media(r, googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

func (d *driveService) Download(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	resp, err := d.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, "", err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return resp.Body, ct, nil
}

func (d *driveService) Delete(ctx context.Context, fileID string) error {
	return d.svc.Files.Delete(fileID).Context(ctx).Do()
}
