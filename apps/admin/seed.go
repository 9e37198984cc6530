package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/makena/hesabu/core/user"
)

const (
	testStudentEmail    = "student@hesabu.test"
	testStudentPassword = "TestStudent123"
)

// seed provisions the super admin account and, in debug mode, a test
// student. Both are idempotent.
func (cli *commandLine) seed() error {
	ctx := context.Background()

	if err := cli.createSuperAdmin(ctx); err != nil {
		return err
	}
	if cli.conf.Debug {
		return cli.createTestStudent(ctx)
	}
	return nil
}

func (cli *commandLine) createSuperAdmin(ctx context.Context) error {
	if _, err := cli.usrRepo.GetUserByRole(ctx, user.RoleSuperAdmin); err == nil {
		logger.Println("super admin already exists; skipping")
		return nil
	} else if err != user.ErrNotFound {
		return err
	}

	seed := cli.conf.SuperAdmin
	if seed.Email == "" || seed.Password == "" {
		return fmt.Errorf("super admin email and password must be configured")
	}

	now := time.Now().UTC()
	usr := user.User{
		ID:              uuid.NewString(),
		Email:           seed.Email,
		FirstName:       "Super",
		LastName:        "Admin",
		Role:            user.RoleSuperAdmin,
		IsActive:        true,
		IsEmailVerified: true,
		PaymentStatus:   user.PaymentFreeAccess,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := usr.SetPassword(seed.Password); err != nil {
		return err
	}
	if _, err := cli.usrRepo.CreateUser(ctx, usr); err != nil {
		return err
	}
	logger.Printf("super admin created: %s", usr.Email)
	return nil
}

func (cli *commandLine) createTestStudent(ctx context.Context) error {
	if _, err := cli.usrRepo.GetUserByEmail(ctx, testStudentEmail); err == nil {
		logger.Println("test student already exists; skipping")
		return nil
	} else if err != user.ErrNotFound {
		return err
	}

	now := time.Now().UTC()
	usr := user.User{
		ID:              uuid.NewString(),
		Email:           testStudentEmail,
		FirstName:       "Test",
		LastName:        "Student",
		Role:            user.RoleStudent,
		IsActive:        true,
		IsEmailVerified: true,
		PaymentStatus:   user.PaymentFreeAccess,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := usr.SetPassword(testStudentPassword); err != nil {
		return err
	}
	if _, err := cli.usrRepo.CreateUser(ctx, usr); err != nil {
		return err
	}
	logger.Printf("test student created: %s", usr.Email)
	return nil
}
