package util

import (
	"strings"

	"golang.org/x/exp/slices"
)

// UniqueNonBlank trims every entry, drops blank entries and keeps the first occurrence of
// each remaining value, preserving order.
func UniqueNonBlank(list []string) []string {
	seen := make(map[string]bool, len(list))
	result := make([]string, 0, len(list))
	for _, item := range list {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		result = append(result, item)
	}
	return result
}

// Unique returns the distinct values of list in their original order.
func Unique[T comparable](list []T) []T {
	seen := make(map[T]bool, len(list))
	result := make([]T, 0, len(list))
	for _, item := range list {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}

func StringListToSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, item := range list {
		set[item] = true
	}
	return set
}

// SortedKeys returns the keys of a set in ascending order.
func SortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Batch splits elements into consecutive slices of at most batchSize elements.
func Batch[T any](elements []T, batchSize int) [][]T {
	if batchSize <= 0 {
		return [][]T{elements}
	}
	batches := make([][]T, 0, (len(elements)+batchSize-1)/batchSize)
	for start := 0; start < len(elements); start += batchSize {
		end := start + batchSize
		if end > len(elements) {
			end = len(elements)
		}
		batches = append(batches, elements[start:end])
	}
	return batches
}
