package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
)

const minPasswordLength = 6

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func parseRoles(raw []string) ([]domain.Role, error) {
	if len(raw) == 0 {
		return []domain.Role{domain.RoleStaff}, nil
	}
	seen := make(map[domain.Role]bool, len(raw))
	roles := make([]domain.Role, 0, len(raw))
	for _, name := range raw {
		role, ok := domain.ParseRole(name)
		if !ok {
			return nil, store.Invalid("unknown role %q", name)
		}
		if seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles, nil
}

func validateEmail(email string) error {
	if email == "" {
		return nil
	}
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return store.Invalid("email %q is not valid", email)
	}
	return nil
}

func parseHireDate(raw string) (*time.Time, error) {
	return parseOptionalDate(raw)
}

func validateSalary(salary *decimal.Decimal) (decimal.NullDecimal, error) {
	if salary == nil {
		return decimal.NullDecimal{}, nil
	}
	if salary.IsNegative() {
		return decimal.NullDecimal{}, store.Invalid("salary must not be negative")
	}
	return decimal.NewNullDecimal(domain.Round2(*salary)), nil
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.TrimSpace(req.Email)

	if req.FullName == "" {
		return domain.Employee{}, store.Invalid("full_name is required")
	}
	if req.Username == "" || strings.ContainsAny(req.Username, " \t") {
		return domain.Employee{}, store.Invalid("username is required and must not contain spaces")
	}
	if len(req.Password) < minPasswordLength {
		return domain.Employee{}, store.Invalid("password must be at least %d characters", minPasswordLength)
	}
	if err := validateEmail(req.Email); err != nil {
		return domain.Employee{}, err
	}

	status := domain.EmployeeActive
	if strings.TrimSpace(req.Status) != "" {
		normalized, ok := normalizeEnum(req.Status, domain.EmployeeActive, domain.EmployeeInactive)
		if !ok {
			return domain.Employee{}, store.Invalid("status must be Active or Inactive")
		}
		status = normalized
	}
	roles, err := parseRoles(req.Roles)
	if err != nil {
		return domain.Employee{}, err
	}
	hireDate, err := parseHireDate(req.HireDate)
	if err != nil {
		return domain.Employee{}, err
	}
	salary, err := validateSalary(req.Salary)
	if err != nil {
		return domain.Employee{}, err
	}
	hashed, err := HashPassword(req.Password)
	if err != nil {
		return domain.Employee{}, err
	}

	now := s.now().UTC()
	created, err := s.repo.CreateEmployee(ctx, domain.Employee{
		FullName:  req.FullName,
		Position:  strings.TrimSpace(req.Position),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     req.Email,
		HireDate:  hireDate,
		Salary:    salary,
		Status:    status,
		Username:  req.Username,
		CreatedAt: now,
		UpdatedAt: now,
	}, &domain.UserAccount{
		Username:  req.Username,
		Password:  hashed,
		Roles:     roles,
		Active:    true,
		CreatedAt: now,
	})
	if err != nil {
		return domain.Employee{}, err
	}

	s.logAudit(ctx, "employee_create", "employee", created.ID, fmt.Sprintf("username=%s,roles=%s", req.Username, strings.Join(domain.RoleNames(roles), ",")))
	return *created, nil
}

func (s *Service) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	employee, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		return domain.Employee{}, err
	}
	return *employee, nil
}

func (s *Service) ListEmployees(ctx context.Context, status string) ([]domain.Employee, error) {
	if strings.TrimSpace(status) != "" {
		normalized, ok := normalizeEnum(status, domain.EmployeeActive, domain.EmployeeInactive)
		if !ok {
			return nil, store.Invalid("status must be Active or Inactive")
		}
		status = normalized
	}
	return s.repo.ListEmployees(ctx, status)
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, req domain.EmployeeUpdateRequest) (domain.Employee, error) {
	existing, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		return domain.Employee{}, err
	}

	updated := *existing
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return domain.Employee{}, store.Invalid("full_name must not be empty")
		}
		updated.FullName = name
	}
	if req.Position != nil {
		updated.Position = strings.TrimSpace(*req.Position)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if err := validateEmail(email); err != nil {
			return domain.Employee{}, err
		}
		updated.Email = email
	}
	if req.HireDate != nil {
		hireDate, err := parseHireDate(*req.HireDate)
		if err != nil {
			return domain.Employee{}, err
		}
		updated.HireDate = hireDate
	}
	if req.Salary != nil {
		salary, err := validateSalary(req.Salary)
		if err != nil {
			return domain.Employee{}, err
		}
		updated.Salary = salary
	}
	if req.Status != nil {
		normalized, ok := normalizeEnum(*req.Status, domain.EmployeeActive, domain.EmployeeInactive)
		if !ok {
			return domain.Employee{}, store.Invalid("status must be Active or Inactive")
		}
		updated.Status = normalized
	}
	updated.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpdateEmployee(ctx, updated)
	if err != nil {
		return domain.Employee{}, err
	}

	s.logAudit(ctx, "employee_update", "employee", saved.ID, fmt.Sprintf("status=%s", saved.Status))
	return *saved, nil
}

func (s *Service) DeleteEmployee(ctx context.Context, id string) error {
	if err := s.repo.DeleteEmployee(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "employee_delete", "employee", id, "deleted")
	return nil
}

// BootstrapAdmin creates an administrator with the given credentials unless
// the username already exists.
func (s *Service) BootstrapAdmin(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil
	}
	if _, err := s.repo.GetUser(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	_, err := s.CreateEmployee(ctx, domain.EmployeeCreateRequest{
		FullName: "Administrator",
		Position: "Administrator",
		Username: username,
		Password: password,
		Roles:    []string{string(domain.RoleAdmin)},
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	return err
}
