package seeder

import (
	"context"
	"errors"
	"fmt"

	"github.com/foodfleet/seedkit/internal/domain"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSteps returns the statically ordered seed sequence. Roles reference
// permissions and the admin user references the superadmin role, so the
// order is load-bearing.
func DefaultSteps() []SeedStep {
	return []SeedStep{
		&PermissionStep{},
		&RoleStep{},
		&AdminUserStep{},
		&SMSTemplateStep{},
	}
}

type permissionRow struct {
	Name        string
	Resource    string
	Action      string
	Description string
}

var permissionData = []permissionRow{
	// User management
	{"users:create", "users", "create", "Create users"},
	{"users:read", "users", "read", "View users"},
	{"users:update", "users", "update", "Update users"},
	{"users:delete", "users", "delete", "Delete users"},

	// Role management
	{"roles:create", "roles", "create", "Create roles"},
	{"roles:read", "roles", "read", "View roles"},
	{"roles:update", "roles", "update", "Update roles"},
	{"roles:delete", "roles", "delete", "Delete roles"},

	// Permission management
	{"permissions:read", "permissions", "read", "View permissions"},

	// File management
	{"files:create", "files", "create", "Upload files"},
	{"files:read", "files", "read", "View files"},
	{"files:update", "files", "update", "Update files"},
	{"files:delete", "files", "delete", "Delete files"},

	// Seeder management
	{"seeders:execute", "seeders", "execute", "Execute seeders"},
	{"seeders:read", "seeders", "read", "View seeder history"},
	{"seeders:restore", "seeders", "restore", "Restore from backup"},

	// Restaurant management
	{"restaurants:create", "restaurants", "create", "Create restaurants"},
	{"restaurants:read", "restaurants", "read", "View restaurants"},
	{"restaurants:update", "restaurants", "update", "Update restaurants"},
	{"restaurants:delete", "restaurants", "delete", "Delete restaurants"},

	// Menu management
	{"menus:create", "menus", "create", "Create menus"},
	{"menus:read", "menus", "read", "View menus"},
	{"menus:update", "menus", "update", "Update menus"},
	{"menus:delete", "menus", "delete", "Delete menus"},
}

func allPermissionNames() []string {
	names := make([]string, len(permissionData))
	for i, p := range permissionData {
		names[i] = p.Name
	}
	return names
}

// PermissionStep seeds the permission catalog, keyed by permission name.
type PermissionStep struct{}

func (s *PermissionStep) Name() string { return "Permissions" }

func (s *PermissionStep) Tables() []string { return []string{"permissions"} }

func (s *PermissionStep) Run(ctx context.Context, tx DBTX) (domain.StepStats, error) {
	rows := make([][]any, len(permissionData))
	for i, p := range permissionData {
		rows[i] = []any{p.Name, p.Resource, p.Action, p.Description}
	}

	created, err := applyUpsert(ctx, tx, upsertSpec{
		Table:      "permissions",
		Columns:    []string{"name", "resource", "action", "description"},
		KeyColumns: []string{"name"},
		Rows:       rows,
	})
	if err != nil {
		return domain.StepStats{}, err
	}

	return domain.StepStats{Created: created}, nil
}

type roleRow struct {
	Name        string
	Description string
	IsSystem    bool
	Permissions []string
}

var roleData = []roleRow{
	{
		Name:        "superadmin",
		Description: "Super Administrator with full system access",
		IsSystem:    true,
		Permissions: allPermissionNames(),
	},
	{
		Name:        "admin",
		Description: "Administrator with limited system access",
		IsSystem:    true,
		Permissions: []string{
			"users:read", "users:create", "users:update",
			"roles:read",
			"files:create", "files:read", "files:update", "files:delete",
			"restaurants:create", "restaurants:read", "restaurants:update", "restaurants:delete",
			"menus:create", "menus:read", "menus:update", "menus:delete",
		},
	},
	{
		Name:        "restaurant_owner",
		Description: "Restaurant owner with restaurant management access",
		IsSystem:    false,
		Permissions: []string{
			"restaurants:read", "restaurants:update",
			"menus:create", "menus:read", "menus:update", "menus:delete",
			"files:create", "files:read", "files:update",
		},
	},
	{
		Name:        "restaurant_manager",
		Description: "Restaurant manager with operational access",
		IsSystem:    false,
		Permissions: []string{
			"restaurants:read",
			"menus:read", "menus:update",
			"files:create", "files:read",
		},
	},
	{
		Name:        "customer",
		Description: "Customer with basic access",
		IsSystem:    false,
		Permissions: []string{
			"restaurants:read",
			"menus:read",
		},
	},
}

// RoleStep seeds system roles and their permission grants. Must run after
// PermissionStep: grants join against permission names.
type RoleStep struct{}

func (s *RoleStep) Name() string { return "Roles" }

func (s *RoleStep) Tables() []string { return []string{"roles", "role_permissions"} }

func (s *RoleStep) Run(ctx context.Context, tx DBTX) (domain.StepStats, error) {
	stats := domain.StepStats{}

	roleSQL := buildUpsertSQL("roles", []string{"name", "description", "is_system"}, []string{"name"})
	for _, role := range roleData {
		tag, err := tx.Exec(ctx, roleSQL, role.Name, role.Description, role.IsSystem)
		if err != nil {
			return stats, fmt.Errorf("upsert role %s: %w", role.Name, err)
		}
		roleCreated := tag.RowsAffected() > 0

		linkTag, err := tx.Exec(
			ctx,
			`INSERT INTO role_permissions (role_id, permission_id)
			 SELECT r.id, p.id
			 FROM roles r
			 JOIN permissions p ON p.name = ANY($2::text[])
			 WHERE r.name = $1
			 ON CONFLICT DO NOTHING`,
			role.Name, role.Permissions,
		)
		if err != nil {
			return stats, fmt.Errorf("grant permissions to role %s: %w", role.Name, err)
		}

		if roleCreated {
			stats.Created++
		} else if linkTag.RowsAffected() > 0 {
			stats.Updated++
		}
	}

	return stats, nil
}

// AdminUserStep seeds the bootstrap superadmin account. Must run after
// RoleStep: the account is bound to the superadmin role.
type AdminUserStep struct{}

const (
	adminEmail    = "admin@foodfleet.com"
	adminUsername = "superadmin"
	// Initial credential; operators are expected to rotate it after first login.
	adminInitialPassword = "SuperAdmin@123"
)

func (s *AdminUserStep) Name() string { return "AdminUser" }

func (s *AdminUserStep) Tables() []string { return []string{"users"} }

func (s *AdminUserStep) Run(ctx context.Context, tx DBTX) (domain.StepStats, error) {
	var roleID string
	err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = 'superadmin'`).Scan(&roleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StepStats{}, errors.New("superadmin role not found; roles must seed before the admin user")
		}
		return domain.StepStats{}, fmt.Errorf("look up superadmin role: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminInitialPassword), bcrypt.DefaultCost)
	if err != nil {
		return domain.StepStats{}, fmt.Errorf("hash admin password: %w", err)
	}

	tag, err := tx.Exec(
		ctx,
		`INSERT INTO users (email, username, password_hash, first_name, last_name,
		                    is_active, is_verified, is_superuser, role_id)
		 VALUES ($1, $2, $3, 'Super', 'Admin', TRUE, TRUE, TRUE, $4)
		 ON CONFLICT (email) DO NOTHING`,
		adminEmail, adminUsername, string(hash), roleID,
	)
	if err != nil {
		return domain.StepStats{}, fmt.Errorf("upsert admin user: %w", err)
	}

	return domain.StepStats{Created: int(tag.RowsAffected())}, nil
}

type smsTemplateRow struct {
	Name        string
	Content     string
	Description string
}

var smsTemplateData = []smsTemplateRow{
	{
		Name:        "2fa_code",
		Content:     "Your Food Fleet verification code is: {{code}}. Valid for 5 minutes.",
		Description: "2FA verification code",
	},
	{
		Name:        "password_reset",
		Content:     "Your Food Fleet password reset code is: {{code}}. Valid for 15 minutes.",
		Description: "Password reset code",
	},
	{
		Name:        "order_confirmation",
		Content:     "Your order #{{order_id}} has been confirmed. Estimated delivery: {{delivery_time}}.",
		Description: "Order confirmation notification",
	},
	{
		Name:        "order_delivered",
		Content:     "Your order #{{order_id}} has been delivered. Enjoy your meal!",
		Description: "Order delivery notification",
	},
}

// SMSTemplateStep seeds notification templates, keyed by template name.
type SMSTemplateStep struct{}

func (s *SMSTemplateStep) Name() string { return "SMSTemplates" }

func (s *SMSTemplateStep) Tables() []string { return []string{"sms_templates"} }

func (s *SMSTemplateStep) Run(ctx context.Context, tx DBTX) (domain.StepStats, error) {
	rows := make([][]any, len(smsTemplateData))
	for i, tpl := range smsTemplateData {
		rows[i] = []any{tpl.Name, tpl.Content, tpl.Description}
	}

	created, err := applyUpsert(ctx, tx, upsertSpec{
		Table:      "sms_templates",
		Columns:    []string{"name", "content", "description"},
		KeyColumns: []string{"name"},
		Rows:       rows,
	})
	if err != nil {
		return domain.StepStats{}, err
	}

	return domain.StepStats{Created: created}, nil
}
