package creativestore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creativestore/creative-store/pkg/creativestore"
	lockmemory "github.com/creativestore/creative-store/pkg/creativestore/lock/memory"
	storagememory "github.com/creativestore/creative-store/pkg/creativestore/storage/memory"
)

func imageTemplate() *creativestore.TemplateDescriptor {
	return &creativestore.TemplateDescriptor{
		Properties: json.RawMessage(`{}`),
		Elements: []creativestore.ElementDescriptor{
			{
				TemplateCode: "banner",
				Type:         creativestore.ElementTypeBitmapImage,
				Properties:   json.RawMessage(`{}`),
				Constraints: creativestore.ConstraintSet{
					creativestore.LanguageUnspecified: &creativestore.ImageConstraints{
						SupportedFileFormats: []creativestore.FileFormat{
							creativestore.FileFormatPNG, creativestore.FileFormatJPEG,
						},
						ImageSizeRange: &creativestore.ImageSizeRange{
							Min: creativestore.ImageSize{Width: 1, Height: 1},
							Max: creativestore.ImageSize{Width: 256, Height: 256},
						},
						MaxFilesize:       1 << 20,
						MaxFilenameLength: 64,
					},
				},
			},
			{
				TemplateCode: "headline",
				Type:         creativestore.ElementTypePlainText,
				Properties:   json.RawMessage(`{}`),
				Constraints:  textConstraints(50),
			},
		},
	}
}

func mustCreateImageTemplate(t *testing.T, svc creativestore.Service, id int64) string {
	t.Helper()
	versionID, err := svc.CreateTemplate(context.Background(), creativestore.CreateTemplateRequest{
		ID: id, Author: "tester", Descriptor: imageTemplate(),
	})
	require.NoError(t, err)
	return versionID
}

// pngBytes encodes a solid-color image of the given size.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateImageTemplate(t, env.svc, 20)

	id := uuid.New()
	session, err := env.svc.CreateSession(ctx, creativestore.CreateSessionRequest{
		ID:         id,
		TemplateID: 20,
		Language:   creativestore.LanguageEN,
		Author:     "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, int64(20), session.TemplateID)
	// An empty requested version pins the latest one.
	assert.Equal(t, templateVersion, session.TemplateVersionID)
	assert.Equal(t, []string{"banner"}, session.BinaryElementCodes)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	got, err := env.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.TemplateVersionID, got.TemplateVersionID)
	assert.Equal(t, session.BinaryElementCodes, got.BinaryElementCodes)
	assert.Equal(t, "alice", got.Author)
	assert.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestCreateSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateImageTemplate(t, env.svc, 20)

	t.Run("unspecified language", func(t *testing.T) {
		_, err := env.svc.CreateSession(ctx, creativestore.CreateSessionRequest{
			ID: uuid.New(), TemplateID: 20, Language: creativestore.LanguageUnspecified,
		})
		assert.ErrorIs(t, err, creativestore.ErrSessionCannotBeCreated)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := env.svc.CreateSession(ctx, creativestore.CreateSessionRequest{
			TemplateID: 20, Language: creativestore.LanguageEN,
		})
		var argErr *creativestore.ArgumentError
		assert.ErrorAs(t, err, &argErr)
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := env.svc.CreateSession(ctx, creativestore.CreateSessionRequest{
			ID: uuid.New(), TemplateID: 404, Language: creativestore.LanguageEN,
		})
		assert.ErrorIs(t, err, creativestore.ErrTemplateNotFound)
	})
}

func TestGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, creativestore.ErrSessionNotFound)
}

func mustCreateSession(t *testing.T, svc creativestore.Service, templateID int64) *creativestore.UploadSession {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), creativestore.CreateSessionRequest{
		ID:         uuid.New(),
		TemplateID: templateID,
		Language:   creativestore.LanguageEN,
		Author:     "alice",
	})
	require.NoError(t, err)
	return session
}

func TestUploadLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateImageTemplate(t, env.svc, 20)
	session := mustCreateSession(t, env.svc, 20)

	upload, err := env.svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
		SessionID:    session.ID,
		TemplateCode: "banner",
		Metadata: creativestore.UploadedFileMetadata{
			Filename:     "banner.png",
			ContentType:  "image/png",
			DeclaredSize: 1024,
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, upload.FileKey)
	require.NotEmpty(t, upload.UploadID)

	data := pngBytes(t, 32, 32)
	require.NoError(t, env.svc.UploadFilePart(ctx, upload, bytes.NewReader(data)))
	require.Len(t, upload.Parts, 1)

	contentKey, err := env.svc.CompleteMultipartUpload(ctx, upload)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(contentKey, ".png"))
	assert.True(t, upload.Completed())

	// The assembled bytes are promoted under the permanent key with the
	// declared content type, and the staging object is cleaned up.
	promoted, meta, err := env.content.Get(ctx, contentKey, "")
	require.NoError(t, err)
	assert.Equal(t, data, promoted)
	assert.Equal(t, "image/png", meta.ContentType)
	assert.Equal(t, "banner.png", meta.Metadata["filename"])

	_, _, err = env.content.Get(ctx, upload.FileKey, "")
	assert.ErrorIs(t, err, creativestore.ErrNotFound)

	// Abort after completion is a silent no-op.
	assert.NoError(t, env.svc.AbortMultipartUpload(ctx, upload))
}

func TestInitiateUploadValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateImageTemplate(t, env.svc, 20)
	session := mustCreateSession(t, env.svc, 20)

	initiate := func(meta creativestore.UploadedFileMetadata, code string) error {
		_, err := env.svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
			SessionID:    session.ID,
			TemplateCode: code,
			Metadata:     meta,
		})
		return err
	}

	t.Run("unknown session", func(t *testing.T) {
		_, err := env.svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
			SessionID:    uuid.New(),
			TemplateCode: "banner",
			Metadata:     creativestore.UploadedFileMetadata{Filename: "a.png"},
		})
		assert.ErrorIs(t, err, creativestore.ErrSessionNotFound)
	})

	t.Run("non-binary element", func(t *testing.T) {
		err := initiate(creativestore.UploadedFileMetadata{Filename: "a.png"}, "headline")
		assert.ErrorIs(t, err, creativestore.ErrInvalidTemplate)
	})

	t.Run("missing filename", func(t *testing.T) {
		err := initiate(creativestore.UploadedFileMetadata{}, "banner")
		assert.ErrorIs(t, err, creativestore.ErrMissingFilename)
	})

	t.Run("filename too long", func(t *testing.T) {
		err := initiate(creativestore.UploadedFileMetadata{
			Filename: strings.Repeat("x", 100) + ".png",
		}, "banner")
		var tooLong *creativestore.FilenameTooLongError
		require.ErrorAs(t, err, &tooLong)
		assert.Equal(t, 64, tooLong.MaxLength)
	})

	t.Run("declared size over limit", func(t *testing.T) {
		err := initiate(creativestore.UploadedFileMetadata{
			Filename: "a.png", DeclaredSize: 2 << 20,
		}, "banner")
		var tooLarge *creativestore.BinaryTooLargeError
		assert.ErrorAs(t, err, &tooLarge)
	})

	t.Run("undeclared target size", func(t *testing.T) {
		err := initiate(creativestore.UploadedFileMetadata{
			Filename: "a.png", TargetSize: 64,
		}, "banner")
		var argErr *creativestore.ArgumentError
		assert.ErrorAs(t, err, &argErr)
	})

	t.Run("unsupported format", func(t *testing.T) {
		err := initiate(creativestore.UploadedFileMetadata{Filename: "a.bmp"}, "banner")
		var badFormat *creativestore.BinaryInvalidFormatError
		assert.ErrorAs(t, err, &badFormat)
	})
}

func TestUploadFirstPartHeaderValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateImageTemplate(t, env.svc, 20)
	session := mustCreateSession(t, env.svc, 20)

	upload, err := env.svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
		SessionID:    session.ID,
		TemplateCode: "banner",
		Metadata:     creativestore.UploadedFileMetadata{Filename: "banner.png", ContentType: "image/png"},
	})
	require.NoError(t, err)

	t.Run("undecodable header", func(t *testing.T) {
		err := env.svc.UploadFilePart(ctx, upload, strings.NewReader("definitely not a png"))
		var invalid *creativestore.InvalidObjectError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("dimensions out of range", func(t *testing.T) {
		err := env.svc.UploadFilePart(ctx, upload, bytes.NewReader(pngBytes(t, 300, 300)))
		var invalid *creativestore.InvalidObjectError
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestUploadSessionExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateImageTemplate(t, env.svc, 20)
	session := mustCreateSession(t, env.svc, 20)

	upload, err := env.svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
		SessionID:    session.ID,
		TemplateCode: "banner",
		Metadata:     creativestore.UploadedFileMetadata{Filename: "banner.png", ContentType: "image/png"},
	})
	require.NoError(t, err)
	require.NoError(t, env.svc.UploadFilePart(ctx, upload, bytes.NewReader(pngBytes(t, 32, 32))))

	// The session expires between parts. Prior progress does not matter.
	upload.Session.ExpiresAt = time.Now().Add(-time.Minute)

	var expired *creativestore.SessionExpiredError
	err = env.svc.UploadFilePart(ctx, upload, bytes.NewReader(pngBytes(t, 32, 32)))
	assert.ErrorAs(t, err, &expired)

	_, err = env.svc.CompleteMultipartUpload(ctx, upload)
	assert.ErrorAs(t, err, &expired)
}

func TestExpiredSessionRejectsInitiate(t *testing.T) {
	locks := lockmemory.New()
	svc, err := creativestore.New(
		creativestore.WithObjectStore(storagememory.New()),
		creativestore.WithTemplateStore(storagememory.New()),
		creativestore.WithSessionStore(storagememory.New()),
		creativestore.WithContentStore(storagememory.New()),
		creativestore.WithLockManager(locks),
		creativestore.WithSessionTTL(-time.Minute),
	)
	require.NoError(t, err)
	ctx := context.Background()
	mustCreateImageTemplate(t, svc, 20)
	session := mustCreateSession(t, svc, 20)

	_, err = svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
		SessionID:    session.ID,
		TemplateCode: "banner",
		Metadata:     creativestore.UploadedFileMetadata{Filename: "banner.png"},
	})
	var expired *creativestore.SessionExpiredError
	assert.ErrorAs(t, err, &expired)
}

func TestCompleteWithoutParts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateImageTemplate(t, env.svc, 20)
	session := mustCreateSession(t, env.svc, 20)

	upload, err := env.svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
		SessionID:    session.ID,
		TemplateCode: "banner",
		Metadata:     creativestore.UploadedFileMetadata{Filename: "banner.png"},
	})
	require.NoError(t, err)

	_, err = env.svc.CompleteMultipartUpload(ctx, upload)
	var argErr *creativestore.ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestAbortUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateImageTemplate(t, env.svc, 20)
	session := mustCreateSession(t, env.svc, 20)

	upload, err := env.svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
		SessionID:    session.ID,
		TemplateCode: "banner",
		Metadata:     creativestore.UploadedFileMetadata{Filename: "banner.png"},
	})
	require.NoError(t, err)
	require.NoError(t, env.svc.UploadFilePart(ctx, upload, bytes.NewReader(pngBytes(t, 32, 32))))

	require.NoError(t, env.svc.AbortMultipartUpload(ctx, upload))

	// Further operations on an aborted upload are rejected.
	err = env.svc.UploadFilePart(ctx, upload, bytes.NewReader(pngBytes(t, 32, 32)))
	var argErr *creativestore.ArgumentError
	assert.ErrorAs(t, err, &argErr)
	_, err = env.svc.CompleteMultipartUpload(ctx, upload)
	assert.ErrorAs(t, err, &argErr)

	// Aborting twice stays a no-op.
	assert.NoError(t, env.svc.AbortMultipartUpload(ctx, upload))
}

func TestCompletedUploadKeyIsContentAddressed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mustCreateImageTemplate(t, env.svc, 20)

	data := pngBytes(t, 32, 32)
	complete := func() string {
		session := mustCreateSession(t, env.svc, 20)
		upload, err := env.svc.InitiateMultipartUpload(ctx, creativestore.InitiateUploadRequest{
			SessionID:    session.ID,
			TemplateCode: "banner",
			Metadata:     creativestore.UploadedFileMetadata{Filename: "banner.png", ContentType: "image/png"},
		})
		require.NoError(t, err)
		require.NoError(t, env.svc.UploadFilePart(ctx, upload, bytes.NewReader(data)))
		key, err := env.svc.CompleteMultipartUpload(ctx, upload)
		require.NoError(t, err)
		return key
	}

	// Identical bytes land on the identical permanent key.
	assert.Equal(t, complete(), complete())
}
