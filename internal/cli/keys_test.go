package cli

import (
	"flag"
	"reflect"
	"testing"
)

func TestKeyListAccumulates(t *testing.T) {
	t.Parallel()

	var keys KeyList
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&keys, "key", "story key")
	if err := fs.Parse([]string{"--key", "bloemen", "--key", "groente_en_fruit, bloemen ,"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	want := []string{"bloemen", "groente_en_fruit"}
	if !reflect.DeepEqual([]string(keys), want) {
		t.Fatalf("unexpected keys: got %v want %v", keys, want)
	}
}

func TestSplitListDropsBlanksAndDuplicates(t *testing.T) {
	t.Parallel()

	got := SplitList(" a,b,,a , c ")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected split: got %v want %v", got, want)
	}
}
