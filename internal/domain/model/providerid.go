package model

import (
	"strconv"
	"strings"
)

// Providers may return composite job ids of the form "base:index" when a
// submission was a member of a batch. The orchestrator passes them through
// unchanged; SplitProviderJobID is used to parse them defensively on lookup.

// ComposeProviderJobID builds the composite id for member i of a batch.
func ComposeProviderJobID(base string, index int) string {
	return base + ":" + strconv.Itoa(index)
}

// SplitProviderJobID splits a composite id into its base and index. For plain
// ids it returns the id unchanged with index -1 and ok=false.
func SplitProviderJobID(id string) (base string, index int, ok bool) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return id, -1, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return id, -1, false
	}
	return id[:i], n, true
}
