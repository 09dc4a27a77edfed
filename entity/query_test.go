package entity_test

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticehq/lattice/entity"
	"github.com/latticehq/lattice/store"
	"github.com/latticehq/lattice/store/memory"
	"github.com/latticehq/lattice/user"
)

func newTestContext(t *testing.T) *entity.Context {
	t.Helper()

	return entity.NewContext(memory.New())
}

func mustSave[T entity.Entity](t *testing.T, c *entity.Context, rec T) {
	t.Helper()
	if err := entity.Save(t.Context(), c, rec); err != nil {
		t.Fatalf("Save(%T) error = %v", rec, err)
	}
}

func seedUsers(t *testing.T, c *entity.Context, names ...[2]string) []user.User {
	t.Helper()

	out := make([]user.User, 0, len(names))
	for i, n := range names {
		u := user.New(n[0], n[1], n[0]+string(rune('0'+i))+"@example.org", "auth|"+n[0])
		mustSave(t, c, *u)
		out = append(out, *u)
	}

	return out
}

func firstNames(users []user.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.FirstName
	}

	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func TestFindMissingRecordIsNil(t *testing.T) {
	c := newTestContext(t)

	got, err := entity.Find[user.User](bson.NewObjectID()).Load(t.Context(), c)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %+v, want nil for a missing record", got)
	}
}

func TestSortAscendingAndOverride(t *testing.T) {
	c := newTestContext(t)
	seedUsers(t, c, [2]string{"Cleo", "Zed"}, [2]string{"Ada", "Young"}, [2]string{"Bob", "Xu"})

	asc, err := entity.All[user.User]().
		Sort(bson.E{Key: "first_name", Value: 1}).
		Load(t.Context(), c)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := firstNames(asc); !equalNames(got, []string{"Ada", "Bob", "Cleo"}) {
		t.Errorf("ascending order = %v", got)
	}

	// A later Sort on the same key overrides, keeping its position.
	desc, err := entity.All[user.User]().
		Sort(bson.E{Key: "first_name", Value: 1}).
		Sort(bson.E{Key: "first_name", Value: -1}).
		Load(t.Context(), c)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := firstNames(desc); !equalNames(got, []string{"Cleo", "Bob", "Ada"}) {
		t.Errorf("descending order = %v", got)
	}
}

func TestSortSecondaryKey(t *testing.T) {
	c := newTestContext(t)
	seedUsers(t, c, [2]string{"Bob", "Smith"}, [2]string{"Ada", "Smith"}, [2]string{"Cleo", "Adler"})

	got, err := entity.All[user.User]().
		Sort(
			bson.E{Key: "last_name", Value: 1},
			bson.E{Key: "first_name", Value: 1},
		).
		Load(t.Context(), c)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if names := firstNames(got); !equalNames(names, []string{"Cleo", "Ada", "Bob"}) {
		t.Errorf("order = %v", names)
	}
}

func TestSkipAndTake(t *testing.T) {
	c := newTestContext(t)
	seedUsers(t, c,
		[2]string{"Ada", "A"}, [2]string{"Bob", "B"}, [2]string{"Cleo", "C"},
		[2]string{"Dee", "D"}, [2]string{"Eve", "E"},
	)

	got, err := entity.All[user.User]().
		Sort(bson.E{Key: "first_name", Value: 1}).
		Skip(1).
		Take(2).
		Load(t.Context(), c)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if names := firstNames(got); !equalNames(names, []string{"Bob", "Cleo"}) {
		t.Errorf("page = %v, want [Bob Cleo]", names)
	}
}

func TestFullTextRelevanceOrdering(t *testing.T) {
	c := newTestContext(t)

	// "smith" appears in two fields for strong, one for weak.
	strong := user.New("Jan", "Smith", "smith@example.org", "auth|1")
	weak := user.New("Pat", "Smith", "pat@example.org", "auth|2")
	other := user.New("Lee", "Jones", "lee@example.org", "auth|3")
	mustSave(t, c, *strong)
	mustSave(t, c, *other)
	mustSave(t, c, *weak)

	got, err := entity.Filter[user.User](user.Conditions{Query: "smith"}).Load(t.Context(), c)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if names := firstNames(got); !equalNames(names, []string{"Jan", "Pat"}) {
		t.Errorf("relevance order = %v, want [Jan Pat]", names)
	}
}

func TestCountAndExists(t *testing.T) {
	c := newTestContext(t)
	seedUsers(t, c, [2]string{"Ada", "A"}, [2]string{"Bob", "B"})

	n, err := entity.All[user.User]().Count(t.Context(), c)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	ok, err := entity.FindBy[user.User](user.Conditions{Query: "ada"}).Exists(t.Context(), c)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Error("Exists() = false, want true")
	}

	ok, err = entity.FindBy[user.User](user.Conditions{Query: "nobody"}).Exists(t.Context(), c)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Error("Exists() = true, want false")
	}
}

func TestCursorSurfacesItemDecodeError(t *testing.T) {
	c := newTestContext(t)
	seedUsers(t, c, [2]string{"Ada", "A"}, [2]string{"Bob", "B"})

	// A corrupt legacy document sits behind the two healthy ones.
	bad := store.Document{
		"_id":        bson.NewObjectID(),
		"created_at": "not-a-timestamp",
		"updated_at": "not-a-timestamp",
		"email":      "corrupt@example.org",
	}
	err := c.Collection(user.CollectionName).
		ReplaceOne(t.Context(), store.Document{"_id": bad["_id"]}, bad, true)
	if err != nil {
		t.Fatalf("ReplaceOne() error = %v", err)
	}

	got, err := entity.All[user.User]().Load(t.Context(), c)
	if !errors.Is(err, entity.ErrDecode) {
		t.Fatalf("Load() error = %v, want ErrDecode", err)
	}
	if len(got) != 2 {
		t.Errorf("Load() yielded %d records before the failure, want 2", len(got))
	}
}

func TestCursorLazyIteration(t *testing.T) {
	c := newTestContext(t)
	seedUsers(t, c, [2]string{"Ada", "A"}, [2]string{"Bob", "B"})

	cur, err := entity.All[user.User]().
		Sort(bson.E{Key: "first_name", Value: 1}).
		Find(t.Context(), c)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	defer cur.Close(context.Background()) //nolint:errcheck // test cleanup

	var names []string
	for cur.Next(t.Context()) {
		rec, err := cur.Record()
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		names = append(names, rec.FirstName)
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if !equalNames(names, []string{"Ada", "Bob"}) {
		t.Errorf("iterated names = %v", names)
	}
}
