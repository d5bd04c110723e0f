// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package auth

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Feature names. Handlers gate capabilities through Features.Allowed
// with these constants, never by comparing role strings.
const (
	FeatureViewEDA        = "view_eda"
	FeatureViewReports    = "view_reports"
	FeatureConvertFiles   = "convert_files"
	FeatureCreateScripts  = "create_scripts"
	FeatureRunScripts     = "run_scripts"
	FeatureSaveLayouts    = "save_layouts"
	FeatureCreateMappings = "create_mappings"
	FeatureUploadFiles    = "upload_files"
	FeatureManageUsers    = "manage_users"
	FeatureViewMetrics    = "view_metrics"
	FeatureDeleteReports  = "delete_reports"
)

// RoleAnonymous is the synthetic role reported for unauthenticated
// callers. It never appears in the database; anonymous access resolves
// to the public feature set.
const RoleAnonymous = "anonymous"

// rolePublic is the casbin subject carrying the anonymous grants.
const rolePublic = "public"

const featureAction = "access"

// Features is the role→feature map. The model and policy are embedded
// and immutable at runtime: three roles where admin inherits user and
// user inherits public.
type Features struct {
	enforcer *casbin.SyncedEnforcer
}

// NewFeatures builds the feature map from the embedded model and policy.
func NewFeatures() (*Features, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("casbin model: %w", err))
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("casbin enforcer: %w", err))
	}
	if err := loadEmbeddedPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}

	return &Features{enforcer: enforcer}, nil
}

// loadEmbeddedPolicy parses the embedded policy CSV into the enforcer.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		ptype := parts[0]
		rule := parts[1:]

		switch ptype {
		case "p":
			if len(rule) >= 3 {
				if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
					return Error.Wrap(fmt.Errorf("add policy %v: %w", rule, err))
				}
			}
		case "g":
			if len(rule) >= 2 {
				if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
					return Error.Wrap(fmt.Errorf("add grouping policy %v: %w", rule, err))
				}
			}
		}
	}
	return nil
}

// normalizeRole maps the absent and anonymous roles onto the public
// subject and leaves database roles untouched.
func normalizeRole(role string) string {
	if role == "" || role == RoleAnonymous {
		return rolePublic
	}
	return role
}

// Allowed reports whether role carries feature. An empty or anonymous
// role checks against the public set. Enforcement errors deny.
func (f *Features) Allowed(role, feature string) bool {
	ok, err := f.enforcer.Enforce(normalizeRole(role), feature, featureAction)
	if err != nil {
		return false
	}
	return ok
}

// ForRole returns the sorted feature names available to role, including
// everything inherited from lower roles.
func (f *Features) ForRole(role string) []string {
	perms, err := f.enforcer.GetImplicitPermissionsForUser(normalizeRole(role))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{}, len(perms))
	features := make([]string, 0, len(perms))
	for _, p := range perms {
		// p is [subject, feature, action]
		if len(p) < 3 || p[2] != featureAction {
			continue
		}
		if _, dup := seen[p[1]]; dup {
			continue
		}
		seen[p[1]] = struct{}{}
		features = append(features, p[1])
	}
	sort.Strings(features)
	return features
}
