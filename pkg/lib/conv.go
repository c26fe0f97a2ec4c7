// lib contains generic helpers shared by the khost packages
package lib

import "sort"

// Map applies f to every element of vs
func Map[V any, R any](vs []V, f func(V) R) []R {
	result := make([]R, len(vs))

	for i, v := range vs {
		result[i] = f(v)
	}

	return result
}

// Filter returns the elements of vs for which keep holds, in order
func Filter[V any](vs []V, keep func(V) bool) []V {
	result := make([]V, 0, len(vs))

	for _, v := range vs {
		if keep(v) {
			result = append(result, v)
		}
	}

	return result
}

// Unique drops repeated elements keeping the first occurrence
func Unique[V comparable](vs []V) []V {
	seen := make(map[V]struct{}, len(vs))
	result := make([]V, 0, len(vs))

	for _, v := range vs {
		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		result = append(result, v)
	}

	return result
}

// SortedKeys returns the keys of m in ascending order
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}
