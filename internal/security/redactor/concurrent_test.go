package redactor

import (
	"sync"
	"testing"
)

func TestDictionary_ConcurrentFilter(t *testing.T) {
	d := mustDictionary(t, basicKeys...)
	const input = "foo bazbaz bar foof bar"
	const want = "*** bazbaz *** ***f ***"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if got := d.Filter(input, Options{}).Result; got != want {
					t.Errorf("Filter() = %q, want %q", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestRedactor_FilterDuringReplace(t *testing.T) {
	r, err := New("alpha")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	shared := r.Dictionary()

	// Every result must come from exactly one of the two keyword sets.
	valid := map[string]bool{
		"***** beta": true,
		"alpha ****": true,
	}

	stop := make(chan struct{})
	var replacer sync.WaitGroup
	replacer.Add(1)
	go func() {
		defer replacer.Done()
		sets := [][]string{{"beta"}, {"alpha"}}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if err := r.Replace(sets[i%2]); err != nil {
				t.Errorf("Replace() error: %v", err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if got := r.Redact("alpha beta"); !valid[got] {
					t.Errorf("Redact() = %q, mixes keyword sets", got)
					return
				}
				if got := shared.Filter("alpha beta", Options{}).Result; got != "***** beta" {
					t.Errorf("captured dictionary changed: %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	replacer.Wait()

	if shared.Len() != 1 || !shared.Contains("alpha") {
		t.Errorf("captured dictionary = %q, want [alpha]", shared.Keywords())
	}
}
