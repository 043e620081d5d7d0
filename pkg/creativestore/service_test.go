package creativestore_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creativestore/creative-store/pkg/creativestore"
	lockmemory "github.com/creativestore/creative-store/pkg/creativestore/lock/memory"
	storagememory "github.com/creativestore/creative-store/pkg/creativestore/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []creativestore.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []creativestore.Option{},
			expectError: true,
		},
		{
			name: "missing lock manager should fail",
			options: []creativestore.Option{
				creativestore.WithObjectStore(storagememory.New()),
				creativestore.WithTemplateStore(storagememory.New()),
				creativestore.WithSessionStore(storagememory.New()),
				creativestore.WithContentStore(storagememory.New()),
			},
			expectError: true,
		},
		{
			name: "all stores and locks should succeed",
			options: []creativestore.Option{
				creativestore.WithObjectStore(storagememory.New()),
				creativestore.WithTemplateStore(storagememory.New()),
				creativestore.WithSessionStore(storagememory.New()),
				creativestore.WithContentStore(storagememory.New()),
				creativestore.WithLockManager(lockmemory.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := creativestore.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

type testEnv struct {
	svc     creativestore.Service
	locks   *lockmemory.Manager
	content *storagememory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	locks := lockmemory.New()
	content := storagememory.New()
	svc, err := creativestore.New(
		creativestore.WithObjectStore(storagememory.New()),
		creativestore.WithTemplateStore(storagememory.New()),
		creativestore.WithSessionStore(storagememory.New()),
		creativestore.WithContentStore(content),
		creativestore.WithLockManager(locks),
	)
	require.NoError(t, err)
	return &testEnv{svc: svc, locks: locks, content: content}
}

func textConstraints(maxSymbols int) creativestore.ConstraintSet {
	return creativestore.ConstraintSet{
		creativestore.LanguageUnspecified: &creativestore.TextConstraints{MaxSymbols: maxSymbols},
	}
}

func testTemplate() *creativestore.TemplateDescriptor {
	return &creativestore.TemplateDescriptor{
		Properties: json.RawMessage(`{}`),
		Elements: []creativestore.ElementDescriptor{
			{
				TemplateCode: "title",
				Type:         creativestore.ElementTypePlainText,
				Properties:   json.RawMessage(`{}`),
				Constraints:  textConstraints(50),
			},
			{
				TemplateCode: "accent",
				Type:         creativestore.ElementTypeColor,
				Properties:   json.RawMessage(`{}`),
				Constraints: creativestore.ConstraintSet{
					creativestore.LanguageUnspecified: &creativestore.ColorConstraints{},
				},
			},
		},
	}
}

// mustCreateTemplate persists the standard two-element template and returns
// its first version id.
func mustCreateTemplate(t *testing.T, svc creativestore.Service, id int64) string {
	t.Helper()
	versionID, err := svc.CreateTemplate(context.Background(), creativestore.CreateTemplateRequest{
		ID:         id,
		Author:     "tester",
		Descriptor: testTemplate(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, versionID)
	return versionID
}

func testObject(templateID int64, templateVersionID, title, accent string) *creativestore.ObjectDescriptor {
	return &creativestore.ObjectDescriptor{
		TemplateID:        templateID,
		TemplateVersionID: templateVersionID,
		Language:          creativestore.LanguageEN,
		Properties:        json.RawMessage(`{}`),
		Elements: []creativestore.ObjectElementDescriptor{
			{
				TemplateCode: "title",
				Type:         creativestore.ElementTypePlainText,
				Properties:   json.RawMessage(`{}`),
				Constraints:  &creativestore.TextConstraints{MaxSymbols: 50},
				Value:        &creativestore.TextValue{Raw: title},
			},
			{
				TemplateCode: "accent",
				Type:         creativestore.ElementTypeColor,
				Properties:   json.RawMessage(`{}`),
				Constraints:  &creativestore.ColorConstraints{},
				Value:        &creativestore.ColorValue{Raw: accent},
			},
		},
	}
}

func TestCreateObjectAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	versionID, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID:         1,
		Author:     "alice",
		Descriptor: testObject(10, templateVersion, "Hello", "#FFAA00"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, versionID)

	got, err := env.svc.GetObjectDescriptor(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, versionID, got.VersionID)
	assert.Equal(t, int64(10), got.TemplateID)
	assert.Equal(t, templateVersion, got.TemplateVersionID)
	assert.Equal(t, creativestore.LanguageEN, got.Language)
	require.Len(t, got.Elements, 2)

	title := got.Element("title")
	require.NotNil(t, title)
	value, ok := title.Value.(*creativestore.TextValue)
	require.True(t, ok)
	assert.Equal(t, "Hello", value.Raw)
}

func TestCreateObjectDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "One", "#000000"),
	})
	require.NoError(t, err)

	_, err = env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "bob", Descriptor: testObject(10, templateVersion, "Two", "#FFFFFF"),
	})
	assert.ErrorIs(t, err, creativestore.ErrObjectAlreadyExists)
}

func TestCreateObjectScalarValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	tests := []struct {
		name   string
		mutate func(*creativestore.ObjectDescriptor)
	}{
		{"unspecified language", func(d *creativestore.ObjectDescriptor) {
			d.Language = creativestore.LanguageUnspecified
		}},
		{"missing template id", func(d *creativestore.ObjectDescriptor) { d.TemplateID = 0 }},
		{"missing template version", func(d *creativestore.ObjectDescriptor) { d.TemplateVersionID = "" }},
		{"nil properties", func(d *creativestore.ObjectDescriptor) { d.Properties = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descriptor := testObject(10, templateVersion, "Hello", "#FFAA00")
			tt.mutate(descriptor)

			_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
				ID: 1, Author: "alice", Descriptor: descriptor,
			})
			var argErr *creativestore.ArgumentError
			assert.ErrorAs(t, err, &argErr)
		})
	}
}

func TestCreateObjectUnknownTemplate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateObject(context.Background(), creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(99, "missing-version", "Hello", "#FFAA00"),
	})
	assert.ErrorIs(t, err, creativestore.ErrTemplateNotFound)
}

func TestCreateObjectStructuralMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	t.Run("missing element", func(t *testing.T) {
		descriptor := testObject(10, templateVersion, "Hello", "#FFAA00")
		descriptor.Elements = descriptor.Elements[:1]

		_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
			ID: 1, Author: "alice", Descriptor: descriptor,
		})
		var inconsistent *creativestore.ObjectInconsistentError
		assert.ErrorAs(t, err, &inconsistent)
	})

	t.Run("unknown element code", func(t *testing.T) {
		descriptor := testObject(10, templateVersion, "Hello", "#FFAA00")
		descriptor.Elements[0].TemplateCode = "subtitle"

		_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
			ID: 1, Author: "alice", Descriptor: descriptor,
		})
		var inconsistent *creativestore.ObjectInconsistentError
		assert.ErrorAs(t, err, &inconsistent)
	})

	t.Run("duplicate element code", func(t *testing.T) {
		// Count matches the template but one code appears twice.
		descriptor := testObject(10, templateVersion, "Hello", "#FFAA00")
		descriptor.Elements[1] = descriptor.Elements[0]

		_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
			ID: 1, Author: "alice", Descriptor: descriptor,
		})
		var inconsistent *creativestore.ObjectInconsistentError
		require.ErrorAs(t, err, &inconsistent)

		// Rejected before any write: the object must not exist.
		_, err = env.svc.GetObjectDescriptor(ctx, 1, "")
		assert.ErrorIs(t, err, creativestore.ErrObjectNotFound)
	})

	t.Run("constraints diverge from template", func(t *testing.T) {
		descriptor := testObject(10, templateVersion, "Hello", "#FFAA00")
		descriptor.Elements[0].Constraints = &creativestore.TextConstraints{MaxSymbols: 999}

		_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
			ID: 1, Author: "alice", Descriptor: descriptor,
		})
		var inconsistent *creativestore.ObjectInconsistentError
		assert.ErrorAs(t, err, &inconsistent)
	})
}

func TestCreateObjectContentViolations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	// Both elements are invalid; every violation must surface in one error.
	descriptor := testObject(10, templateVersion,
		"This title is far far far far far longer than fifty characters allow",
		"not-a-color")

	_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: descriptor,
	})
	var invalid *creativestore.InvalidObjectError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Violations, 2)
	assert.Equal(t, "title", invalid.Violations[0].TemplateCode)
	assert.Equal(t, "accent", invalid.Violations[1].TemplateCode)
}

func TestModifyObject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	v1, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "Hello", "#FFAA00"),
	})
	require.NoError(t, err)

	v2, err := env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
		ID:                1,
		ExpectedVersionID: v1,
		Author:            "bob",
		Descriptor:        testObject(10, templateVersion, "Goodbye", "#FFAA00"),
	})
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	latest, err := env.svc.GetObjectDescriptor(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, v2, latest.VersionID)
	assert.Equal(t, "Goodbye", latest.Element("title").Value.(*creativestore.TextValue).Raw)

	// The first version stays readable by its id.
	old, err := env.svc.GetObjectDescriptor(ctx, 1, v1)
	require.NoError(t, err)
	assert.Equal(t, "Hello", old.Element("title").Value.(*creativestore.TextValue).Raw)
}

func TestModifyObjectStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	v1, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "Hello", "#FFAA00"),
	})
	require.NoError(t, err)

	_, err = env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
		ID: 1, ExpectedVersionID: v1, Author: "bob",
		Descriptor: testObject(10, templateVersion, "Second", "#FFAA00"),
	})
	require.NoError(t, err)

	// A second writer still holding v1 must be rejected.
	_, err = env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
		ID: 1, ExpectedVersionID: v1, Author: "carol",
		Descriptor: testObject(10, templateVersion, "Third", "#FFAA00"),
	})
	assert.ErrorIs(t, err, creativestore.ErrConcurrency)
}

func TestModifyObjectRequiresExpectedVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "Hello", "#FFAA00"),
	})
	require.NoError(t, err)

	_, err = env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
		ID: 1, Author: "bob",
		Descriptor: testObject(10, templateVersion, "Changed", "#FFAA00"),
	})
	var argErr *creativestore.ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestModifyObjectCopyOnWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	v1, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "Hello", "#FFAA00"),
	})
	require.NoError(t, err)

	before, err := env.svc.GetObjectDescriptor(ctx, 1, "")
	require.NoError(t, err)

	// Only the title changes; the accent element must keep its key identity
	// and sub-object version.
	_, err = env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
		ID: 1, ExpectedVersionID: v1, Author: "bob",
		Descriptor: testObject(10, templateVersion, "Changed", "#FFAA00"),
	})
	require.NoError(t, err)

	after, err := env.svc.GetObjectDescriptor(ctx, 1, "")
	require.NoError(t, err)

	assert.Equal(t, before.Element("accent").ID, after.Element("accent").ID)
	assert.Equal(t, before.Element("accent").VersionID, after.Element("accent").VersionID)
	assert.Equal(t, before.Element("title").ID, after.Element("title").ID)
	assert.NotEqual(t, before.Element("title").VersionID, after.Element("title").VersionID)
}

func TestGetObjectDescriptorNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetObjectDescriptor(context.Background(), 404, "")
	assert.ErrorIs(t, err, creativestore.ErrObjectNotFound)
}

func TestGetObjectVersions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	v1, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "One", "#FFAA00"),
	})
	require.NoError(t, err)
	v2, err := env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
		ID: 1, ExpectedVersionID: v1, Author: "bob",
		Descriptor: testObject(10, templateVersion, "Two", "#FFAA00"),
	})
	require.NoError(t, err)
	v3, err := env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
		ID: 1, ExpectedVersionID: v2, Author: "carol",
		Descriptor: testObject(10, templateVersion, "Three", "#FFAA00"),
	})
	require.NoError(t, err)

	records, err := env.svc.GetObjectVersions(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest-first, strictly decreasing indexes.
	assert.Equal(t, v3, records[0].VersionID)
	assert.Equal(t, v2, records[1].VersionID)
	assert.Equal(t, v1, records[2].VersionID)
	assert.Equal(t, 3, records[0].VersionIndex)
	assert.Equal(t, 2, records[1].VersionIndex)
	assert.Equal(t, 1, records[2].VersionIndex)
	assert.Equal(t, "carol", records[0].Author)
	assert.Equal(t, []string{"title"}, records[0].ModifiedElements)

	t.Run("boundary excluded", func(t *testing.T) {
		since, err := env.svc.GetObjectVersions(ctx, 1, v1)
		require.NoError(t, err)
		require.Len(t, since, 2)
		assert.Equal(t, v3, since[0].VersionID)
		assert.Equal(t, v2, since[1].VersionID)
		assert.Equal(t, 3, since[0].VersionIndex)
		assert.Equal(t, 2, since[1].VersionIndex)
	})

	t.Run("unknown object", func(t *testing.T) {
		_, err := env.svc.GetObjectVersions(ctx, 404, "")
		assert.ErrorIs(t, err, creativestore.ErrObjectNotFound)
	})
}

func TestGetObjectVersionsLockedByWriter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "One", "#FFAA00"),
	})
	require.NoError(t, err)

	lock, err := env.locks.Acquire(ctx, "object/1")
	require.NoError(t, err)
	defer lock.Release(ctx)

	_, err = env.svc.GetObjectVersions(ctx, 1, "")
	assert.ErrorIs(t, err, creativestore.ErrObjectLocked)
}

func TestWritesContendedByLockHolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	version, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "One", "#FFAA00"),
	})
	require.NoError(t, err)

	lock, err := env.locks.Acquire(ctx, "object/1")
	require.NoError(t, err)

	t.Run("modify loses to the holder", func(t *testing.T) {
		_, err := env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
			ID: 1, ExpectedVersionID: version, Author: "bob",
			Descriptor: testObject(10, templateVersion, "Two", "#FFAA00"),
		})
		assert.ErrorIs(t, err, creativestore.ErrLockAlreadyExists)
	})

	t.Run("create loses to the holder", func(t *testing.T) {
		_, err := env.locks.Acquire(ctx, "object/2")
		require.NoError(t, err)

		_, err = env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
			ID: 2, Author: "bob", Descriptor: testObject(10, templateVersion, "Two", "#FFAA00"),
		})
		assert.ErrorIs(t, err, creativestore.ErrLockAlreadyExists)
	})

	t.Run("release unblocks the writer", func(t *testing.T) {
		lock.Release(ctx)

		_, err := env.svc.ModifyObject(ctx, creativestore.ModifyObjectRequest{
			ID: 1, ExpectedVersionID: version, Author: "bob",
			Descriptor: testObject(10, templateVersion, "Two", "#FFAA00"),
		})
		require.NoError(t, err)
	})
}

func TestListObjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	for _, id := range []int64{1, 2, 3} {
		_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
			ID: id, Author: "alice", Descriptor: testObject(10, templateVersion, "Hello", "#FFAA00"),
		})
		require.NoError(t, err)
	}

	records, next, err := env.svc.ListObjects(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, records, 3)
	for _, record := range records {
		assert.NotEmpty(t, record.VersionID)
	}
}

func TestGetImageElementValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	_, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "Hello", "#FFAA00"),
	})
	require.NoError(t, err)

	t.Run("non-image element", func(t *testing.T) {
		_, err := env.svc.GetImageElementValue(ctx, 1, "", "title")
		assert.ErrorIs(t, err, creativestore.ErrNotImageElement)
	})

	t.Run("unknown element", func(t *testing.T) {
		_, err := env.svc.GetImageElementValue(ctx, 1, "", "missing")
		assert.ErrorIs(t, err, creativestore.ErrElementNotFound)
	})
}

func TestGetObjectVersionLastModified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	templateVersion := mustCreateTemplate(t, env.svc, 10)

	versionID, err := env.svc.CreateObject(ctx, creativestore.CreateObjectRequest{
		ID: 1, Author: "alice", Descriptor: testObject(10, templateVersion, "Hello", "#FFAA00"),
	})
	require.NoError(t, err)

	modified, err := env.svc.GetObjectVersionLastModified(ctx, 1, versionID)
	require.NoError(t, err)
	assert.False(t, modified.IsZero())
}
