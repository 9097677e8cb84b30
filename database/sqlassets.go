package sqlassets

import _ "embed"

//go:embed schema/platform/tenants.sql
var TenantsSQL string

//go:embed schema/platform/memberships.sql
var MembershipsSQL string

//go:embed schema/platform/audit.sql
var AuditSQL string

//go:embed schema/tenant_space/communities.sql
var CommunitiesSQL string

//go:embed schema/tenant_space/posts.sql
var PostsSQL string

// TenantOwnedTables lists the tables protected by the tenant_isolation policy,
// in dependency order.
var TenantOwnedTables = []string{"communities", "posts"}
