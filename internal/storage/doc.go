// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

/*
Package storage implements the per-user, category-partitioned file
store: uploaded recordings, CAN databases, and the JSON artifacts
(layouts, mappings, analyses) that the rest of Courbe reads back.

# Layout

Files live under a single root, split into a read-only default zone and
per-user zones:

	{root}/default/{category}/{filename}
	{root}/users/{user_id}/{category}/{filename}

On-disk names are "{id}.{ext}" so a hostile original filename never
reaches the filesystem. The original name survives only as a database
column. Rows with no owner are the default (demo) set: visible to every
account, immutable through the user-facing operations.

# Budget enforcement

Each account has a byte quota (default 5 GiB, overridable per user by
an admin) plus caps on total files and files per category. An upload is
admitted only when, in order: the extension is allowed for the
category, the file fits the category's per-file ceiling, the quota has
room, and both count caps hold. The whole check-then-write sequence is
serialized by a per-owner mutex, so two concurrent uploads from the
same account cannot both squeeze past the last few quota bytes. Reads
never take the lock.

# Path safety

Every path handed to the filesystem is rebuilt from the row's owner,
category and stored filename, then verified to still sit directly under
its category root. A row that fails this check surfaces ErrInvalidPath
to the caller; the orphan reconciler is the remediation path and
removes such rows along with rows whose backing file has disappeared.

The reconciler runs at startup and, best-effort, after each login.
*/
package storage
