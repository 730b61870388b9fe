package testsupport

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSequence_Increments(t *testing.T) {
	seq1 := NextSequence()
	seq2 := NextSequence()

	assert.Equal(t, seq1+1, seq2, "Should increment by 1")
}

func TestUniqueName_GeneratesUnique(t *testing.T) {
	name1 := UniqueName("quotes")
	name2 := UniqueName("quotes")

	assert.NotEqual(t, name1, name2, "Names should be unique")
	assert.True(t, strings.HasPrefix(name1, "quotes_"), "Should contain prefix")
}

func TestUniqueTicker_IsUpperCase(t *testing.T) {
	ticker := UniqueTicker()
	assert.Equal(t, strings.ToUpper(ticker), ticker)
}

func TestNextSequence_Concurrent(t *testing.T) {
	const n = 100
	var wg sync.WaitGroup
	seen := sync.Map{}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(NextSequence(), struct{}{})
			assert.False(t, dup, "sequence numbers must not repeat")
		}()
	}
	wg.Wait()
}
