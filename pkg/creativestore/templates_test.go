package creativestore_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

func TestCreateTemplateAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	versionID := mustCreateTemplate(t, env.svc, 10)

	got, err := env.svc.GetTemplateDescriptor(ctx, 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.ID)
	assert.Equal(t, versionID, got.VersionID)
	require.Len(t, got.Elements, 2)

	title := got.Element("title")
	require.NotNil(t, title)
	assert.Equal(t, creativestore.ElementTypePlainText, title.Type)

	constraints, ok := title.Constraints.Resolve(creativestore.LanguageEN)
	require.True(t, ok)
	text, ok := constraints.(*creativestore.TextConstraints)
	require.True(t, ok)
	assert.Equal(t, 50, text.MaxSymbols)
}

func TestCreateTemplateDuplicate(t *testing.T) {
	env := newTestEnv(t)

	mustCreateTemplate(t, env.svc, 10)

	_, err := env.svc.CreateTemplate(context.Background(), creativestore.CreateTemplateRequest{
		ID: 10, Author: "tester", Descriptor: testTemplate(),
	})
	assert.ErrorIs(t, err, creativestore.ErrObjectAlreadyExists)
}

func TestCreateTemplateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*creativestore.TemplateDescriptor)
	}{
		{"nil properties", func(d *creativestore.TemplateDescriptor) { d.Properties = nil }},
		{"no elements", func(d *creativestore.TemplateDescriptor) { d.Elements = nil }},
		{"duplicate element codes", func(d *creativestore.TemplateDescriptor) {
			d.Elements[1].TemplateCode = d.Elements[0].TemplateCode
		}},
		{"invalid element type", func(d *creativestore.TemplateDescriptor) {
			d.Elements[0].Type = creativestore.ElementType("hologram")
		}},
		{"empty constraint set", func(d *creativestore.TemplateDescriptor) {
			d.Elements[0].Constraints = creativestore.ConstraintSet{}
		}},
		{"constraint variant mismatch", func(d *creativestore.TemplateDescriptor) {
			// Color constraints on a text element.
			d.Elements[0].Constraints = creativestore.ConstraintSet{
				creativestore.LanguageUnspecified: &creativestore.ColorConstraints{},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descriptor := testTemplate()
			tt.mutate(descriptor)

			_, err := env.svc.CreateTemplate(ctx, creativestore.CreateTemplateRequest{
				ID: 10, Author: "tester", Descriptor: descriptor,
			})
			assert.Error(t, err)
		})
	}
}

func TestModifyTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := mustCreateTemplate(t, env.svc, 10)

	next := testTemplate()
	next.Elements[0].Constraints = creativestore.ConstraintSet{
		creativestore.LanguageUnspecified: &creativestore.TextConstraints{MaxSymbols: 80},
	}
	v2, err := env.svc.ModifyTemplate(ctx, creativestore.ModifyTemplateRequest{
		ID: 10, ExpectedVersionID: v1, Author: "editor", Descriptor: next,
	})
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	latest, err := env.svc.GetTemplateDescriptor(ctx, 10, "")
	require.NoError(t, err)
	assert.Equal(t, v2, latest.VersionID)

	constraints, ok := latest.Element("title").Constraints.Resolve(creativestore.LanguageEN)
	require.True(t, ok)
	assert.Equal(t, 80, constraints.(*creativestore.TextConstraints).MaxSymbols)

	// The pinned first version still resolves the original constraints.
	pinned, err := env.svc.GetTemplateDescriptor(ctx, 10, v1)
	require.NoError(t, err)
	constraints, ok = pinned.Element("title").Constraints.Resolve(creativestore.LanguageEN)
	require.True(t, ok)
	assert.Equal(t, 50, constraints.(*creativestore.TextConstraints).MaxSymbols)
}

func TestModifyTemplateStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := mustCreateTemplate(t, env.svc, 10)

	_, err := env.svc.ModifyTemplate(ctx, creativestore.ModifyTemplateRequest{
		ID: 10, ExpectedVersionID: v1, Author: "editor", Descriptor: testTemplate(),
	})
	require.NoError(t, err)

	_, err = env.svc.ModifyTemplate(ctx, creativestore.ModifyTemplateRequest{
		ID: 10, ExpectedVersionID: v1, Author: "editor", Descriptor: testTemplate(),
	})
	assert.ErrorIs(t, err, creativestore.ErrConcurrency)
}

func TestModifyTemplateNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ModifyTemplate(context.Background(), creativestore.ModifyTemplateRequest{
		ID: 404, ExpectedVersionID: "v1", Author: "editor", Descriptor: testTemplate(),
	})
	assert.ErrorIs(t, err, creativestore.ErrTemplateNotFound)
}

func TestGetTemplateVersions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := mustCreateTemplate(t, env.svc, 10)
	v2, err := env.svc.ModifyTemplate(ctx, creativestore.ModifyTemplateRequest{
		ID: 10, ExpectedVersionID: v1, Author: "editor", Descriptor: testTemplate(),
	})
	require.NoError(t, err)

	records, err := env.svc.GetTemplateVersions(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, v2, records[0].VersionID)
	assert.Equal(t, v1, records[1].VersionID)
	assert.Equal(t, 2, records[0].VersionIndex)
	assert.Equal(t, 1, records[1].VersionIndex)
}

func TestTemplateConstraintLanguageFallback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	descriptor := &creativestore.TemplateDescriptor{
		Properties: json.RawMessage(`{}`),
		Elements: []creativestore.ElementDescriptor{
			{
				TemplateCode: "title",
				Type:         creativestore.ElementTypePlainText,
				Properties:   json.RawMessage(`{}`),
				Constraints: creativestore.ConstraintSet{
					creativestore.LanguageUnspecified: &creativestore.TextConstraints{MaxSymbols: 20},
					creativestore.LanguageRU:          &creativestore.TextConstraints{MaxSymbols: 40},
				},
			},
		},
	}
	_, err := env.svc.CreateTemplate(ctx, creativestore.CreateTemplateRequest{
		ID: 11, Author: "tester", Descriptor: descriptor,
	})
	require.NoError(t, err)

	got, err := env.svc.GetTemplateDescriptor(ctx, 11, "")
	require.NoError(t, err)

	ru, ok := got.Element("title").Constraints.Resolve(creativestore.LanguageRU)
	require.True(t, ok)
	assert.Equal(t, 40, ru.(*creativestore.TextConstraints).MaxSymbols)

	// Any other language falls back to the wildcard entry.
	en, ok := got.Element("title").Constraints.Resolve(creativestore.LanguageEN)
	require.True(t, ok)
	assert.Equal(t, 20, en.(*creativestore.TextConstraints).MaxSymbols)
}
