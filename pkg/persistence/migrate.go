package persistence

import (
	"bytes"
	"context"
)

// MigrateOptions configures Migrate.
type MigrateOptions struct {
	// Filter restricts migration to keys for which Filter returns true.
	// nil migrates every key.
	Filter func(key string) bool
	// BatchSize bounds how many keys are copied per batch. 0 defaults to
	// 100.
	BatchSize int
	// DeleteFromSource removes each successfully migrated key from
	// source once it is written to target.
	DeleteFromSource bool
}

// MigrationResult reports the outcome of a Migrate call (spec.md §4.4).
type MigrationResult struct {
	TotalKeys     int
	MigratedCount int
	FailedCount   int
	FailedKeys    []string
}

// Migrate copies filtered keys from source to target in batches,
// optionally deleting them from source once copied.
func Migrate(ctx context.Context, source, target Backend, opts MigrateOptions) (MigrationResult, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	keys, err := source.Keys(ctx)
	if err != nil {
		return MigrationResult{}, err
	}

	var filtered []string
	for _, k := range keys {
		if opts.Filter == nil || opts.Filter(k) {
			filtered = append(filtered, k)
		}
	}

	result := MigrationResult{TotalKeys: len(filtered)}

	for start := 0; start < len(filtered); start += batchSize {
		end := start + batchSize
		if end > len(filtered) {
			end = len(filtered)
		}
		for _, key := range filtered[start:end] {
			rec, ok, err := source.Get(ctx, key)
			if err != nil || !ok {
				result.FailedCount++
				result.FailedKeys = append(result.FailedKeys, key)
				continue
			}
			if err := target.Set(ctx, key, rec); err != nil {
				result.FailedCount++
				result.FailedKeys = append(result.FailedKeys, key)
				continue
			}
			if opts.DeleteFromSource {
				_, _ = source.Delete(ctx, key)
			}
			result.MigratedCount++
		}
	}

	return result, nil
}

// VerificationResult reports what VerifyMigration found.
type VerificationResult struct {
	OK            bool
	MissingInTarget []string
	Mismatched      []string
}

// VerifyMigration cross-checks that every key present in source (matching
// filter) is present in target with byte-identical Value.
func VerifyMigration(ctx context.Context, source, target Backend, filter func(key string) bool) (VerificationResult, error) {
	keys, err := source.Keys(ctx)
	if err != nil {
		return VerificationResult{}, err
	}

	result := VerificationResult{OK: true}
	for _, key := range keys {
		if filter != nil && !filter(key) {
			continue
		}
		srcRec, ok, err := source.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		tgtRec, ok, err := target.Get(ctx, key)
		if err != nil || !ok {
			result.OK = false
			result.MissingInTarget = append(result.MissingInTarget, key)
			continue
		}
		if !bytes.Equal(srcRec.Value, tgtRec.Value) {
			result.OK = false
			result.Mismatched = append(result.Mismatched, key)
		}
	}
	return result, nil
}
