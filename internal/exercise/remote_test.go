package exercise

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voithos/swiftcode/internal/models"
)

func TestMakeTypeable(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "strips indentation",
			code: "func main() {\n\tfmt.Println(\"hi\")\n}",
			want: "func main() {\nfmt.Println(\"hi\")\n}",
		},
		{
			name: "collapses blank lines",
			code: "a = 1\n\n\nb = 2\n",
			want: "a = 1\nb = 2",
		},
		{
			name: "mixed spaces and tabs",
			code: "if x:\n    \ty = 1",
			want: "if x:\ny = 1",
		},
		{
			name: "empty",
			code: "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MakeTypeable(tt.code); got != tt.want {
				t.Fatalf("MakeTypeable = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/go/demo/main.go" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("func main() {\n\trun()\n}\n"))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, nil, Source{Lang: "go", ProjectName: "demo", Path: "/go/demo/main.go"})
	ex, err := r.Exercise(context.Background(), "go")
	if err != nil {
		t.Fatalf("Exercise: %v", err)
	}
	if ex.ProjectName != "demo" {
		t.Fatalf("ProjectName = %q, want demo", ex.ProjectName)
	}
	if ex.Typeable != "func main() {\nrun()\n}" {
		t.Fatalf("Typeable = %q", ex.Typeable)
	}

	if _, err := r.Exercise(context.Background(), "cobol"); err == nil {
		t.Fatal("unknown language did not error without a fallback")
	}
}

func TestRemoteFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	local := NewStatic(models.Exercise{ID: "go-1", Lang: "go", Typeable: "var x int"})
	r := NewRemote(srv.URL, local, Source{Lang: "go", ProjectName: "demo", Path: "/go/demo/main.go"})

	ex, err := r.Exercise(context.Background(), "go")
	if err != nil {
		t.Fatalf("Exercise with fallback: %v", err)
	}
	if ex.ID != "go-1" {
		t.Fatalf("got %q, want the local sample", ex.ID)
	}
}
