package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/unkn0wn-root/swrcache/errclass"
)

func TestKeyFor(t *testing.T) {
	require.Equal(t, PermissionError, KeyFor(errclass.Auth))
	require.Equal(t, NetworkError, KeyFor(errclass.Network))
	require.Equal(t, NotFound, KeyFor(errclass.NotFound))
	require.Equal(t, ServerError, KeyFor(errclass.Server))
	require.Equal(t, SaveError, KeyFor(errclass.Unknown))
}

func TestCatalogLocales(t *testing.T) {
	tests := []struct {
		locale string
		tag    language.Tag
		want   string
	}{
		{"en", language.English, "Could not save your changes."},
		{"ko-KR", language.Korean, "저장에 실패했습니다."},
		{"", language.English, "Could not save your changes."},
		{"not a locale!", language.English, "Could not save your changes."},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			c := NewCatalog(tt.locale)
			require.Equal(t, tt.tag, c.Tag())
			require.Equal(t, tt.want, c.Text(SaveError))
		})
	}
}

func TestFuncAdapter(t *testing.T) {
	var got []Notification
	var n Notifier = Func(func(_ context.Context, n Notification) { got = append(got, n) })
	n.Notify(context.Background(), Notification{Message: SaveError})
	require.Len(t, got, 1)
	Nop{}.Notify(context.Background(), Notification{})
}
