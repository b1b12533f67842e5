package postgres

import (
	"testing"

	"github.com/AmityCo/answercore/pkg/provider/km"
)

func TestBuildQueryText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		q    km.Query
		want string
	}{
		{
			name: "text only",
			q:    km.Query{Text: "where is the pool"},
			want: "where is the pool",
		},
		{
			name: "text and keywords",
			q:    km.Query{Text: "where is the pool", Keywords: []string{"pool", "swimming"}},
			want: "where is the pool pool swimming",
		},
		{
			name: "blank keywords dropped",
			q:    km.Query{Text: " hi ", Keywords: []string{"", "  ", "spa"}},
			want: "hi spa",
		},
		{
			name: "empty",
			q:    km.Query{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := buildQueryText(tt.q); got != tt.want {
				t.Errorf("buildQueryText() = %q, want %q", got, tt.want)
			}
		})
	}
}
