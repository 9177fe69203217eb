// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package dird

import "time"

// JobType identifies the kind of work a JobRecord performs.
type JobType int

const (
	TypeBackup JobType = iota
	TypeRestore
	TypeVerify
	TypeAdmin
	TypeMigrate
	TypeCopy
	TypeConsolidate
)

func (t JobType) String() string {
	switch t {
	case TypeBackup:
		return "backup"
	case TypeRestore:
		return "restore"
	case TypeVerify:
		return "verify"
	case TypeAdmin:
		return "admin"
	case TypeMigrate:
		return "migrate"
	case TypeCopy:
		return "copy"
	case TypeConsolidate:
		return "consolidate"
	default:
		return "unknown"
	}
}

// ignoresClientConcurrency reports whether jobs of this type skip the
// client concurrency counter. Migrate, copy, and consolidate jobs read
// from other jobs' volumes rather than from a client, so they never count
// against it.
func (t JobType) ignoresClientConcurrency() bool {
	switch t {
	case TypeMigrate, TypeCopy, TypeConsolidate:
		return true
	default:
		return false
	}
}

// JobLevel is the backup level of a record (base, incremental, ...).
// LevelBase is the distinguished base level; incomplete base backups are
// never rescheduled.
type JobLevel int

const (
	LevelBase JobLevel = iota
	LevelIncremental
	LevelDifferential
	LevelVerifyCatalog
)

// JobResource is the config-layer input describing a job definition's
// concurrency cap, reschedule policy, and mixed-priority permission.
type JobResource struct {
	Name string

	// MaxConcurrentJobs caps how many runs of this job definition may be
	// in flight at once. Zero means unlimited.
	MaxConcurrentJobs int

	// AllowMixedPriority permits this job's runs to be promoted alongside
	// a more urgent (lower Priority value) running set, and, on a running
	// job, permits less urgent jobs to join it. Every running job must
	// permit it.
	AllowMixedPriority bool

	Type  JobType
	Level JobLevel

	RescheduleTimes          int
	RescheduleInterval       time.Duration
	RescheduleOnError        bool
	RescheduleIncompleteJobs bool
}

// ClientResource is the config-layer input describing a client's
// concurrency cap.
type ClientResource struct {
	Name              string
	MaxConcurrentJobs int
}

// StorageResource is the config-layer input describing a read or write
// storage endpoint's concurrency cap.
type StorageResource struct {
	Name              string
	MaxConcurrentJobs int
}

// PoolResource is a named volume pool a record may draw from.
type PoolResource struct {
	Name string
}

// PoolSlots bundles the pool references a JobRecord carries: the regular
// pool, the full/incremental/differential pools, the next-pool used by
// migrate/copy jobs, and the per-run override of each. The whole bundle is
// copied verbatim onto a record spawned by the Rescheduler.
type PoolSlots struct {
	Pool             *PoolResource
	PoolOverride     *PoolResource
	FullPool         *PoolResource
	FullPoolOverride *PoolResource
	IncPool          *PoolResource
	IncPoolOverride  *PoolResource
	DiffPool         *PoolResource
	DiffPoolOverride *PoolResource
	NextPool         *PoolResource
	NextPoolOverride *PoolResource
}

// MessagesResource is the opaque binding that routes a record's
// informational and error messages to the surrounding daemon's messaging
// infrastructure. This package never interprets it; it is copied verbatim
// on reschedule.
type MessagesResource struct {
	Name string
}
