package database

import (
	"fmt"

	"github.com/otabeknarz/11tutors-backend/models"
	"github.com/otabeknarz/11tutors-backend/utils"

	"gorm.io/gorm"
)

// SeedAdmin создает администратора, если его еще нет. Пустой email - ничего не делаем.
func SeedAdmin(db *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil // Уже есть, ничего не делаем
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	admin := models.User{
		Email:           email,
		FirstName:       "Admin",
		Password:        hash,
		Role:            models.RoleAdmin,
		IsEmailVerified: true,
	}
	return db.Create(&admin).Error
}

// SeedCategories заполняет справочник категорий, если он пуст
func SeedCategories(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Category{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	categories := []models.Category{
		{Name: "Mathematics", Slug: "mathematics"},
		{Name: "Physics", Slug: "physics"},
		{Name: "Computer Science", Slug: "computer-science"},
		{Name: "English", Slug: "english"},
		{Name: "IELTS", Slug: "ielts"},
		{Name: "SAT", Slug: "sat"},
	}
	if err := db.Create(&categories).Error; err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	return nil
}
