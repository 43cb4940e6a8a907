package seeders

import (
	"log"
	"time"

	"schoolpulse_go/config"
	"schoolpulse_go/models"
	"schoolpulse_go/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedAll runs all seeders
func SeedAll(db *gorm.DB, withDemo bool) error {
	log.Println("Starting database seeding...")

	if err := SeedBadges(db); err != nil {
		return err
	}
	if withDemo {
		if err := SeedDemoSchool(db); err != nil {
			return err
		}
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

// SeedBadges upserts the embedded badge catalog by code.
func SeedBadges(db *gorm.DB) error {
	d, err := config.LoadDefaults()
	if err != nil {
		return err
	}
	for _, def := range d.Badges {
		badge := models.Badge{
			Code:        def.Code,
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
			Criteria:    def.Criteria,
			Points:      def.Points,
		}
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "category", "criteria", "points", "updated_at"}),
		}).Create(&badge).Error
		if err != nil {
			return err
		}
	}
	log.Printf("Seeded %d badges", len(d.Badges))
	return nil
}

// SeedDemoSchool creates a verified demo principal with two teachers when none exists.
func SeedDemoSchool(db *gorm.DB) error {
	const principalEmail = "principal@demo.school"

	var count int64
	db.Model(&models.User{}).Where("email = ?", principalEmail).Count(&count)
	if count > 0 {
		log.Println("Demo school already seeded, skipping...")
		return nil
	}

	d, err := config.LoadDefaults()
	if err != nil {
		return err
	}
	hash, err := utils.HashPassword("password123")
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		principal := models.User{
			Email:         principalEmail,
			Password:      hash,
			Role:          models.RolePrincipal,
			EmailVerified: true,
			Status:        models.StatusActive,
		}
		if err := tx.Create(&principal).Error; err != nil {
			return err
		}
		schoolID := models.SchoolIDFor(principal.ID)
		if err := tx.Model(&principal).Update("school_id", schoolID).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.Principal{UserID: principal.ID, Name: "Demo Principal", SchoolName: "Demo School"}).Error; err != nil {
			return err
		}
		school := models.School{
			ID:          schoolID,
			Name:        "Demo School",
			PrincipalID: principal.ID,
			Settings: models.SchoolSettings{
				Departments: d.School.Departments,
				GradeLevels: d.School.GradeLevels,
				Subjects:    d.School.Subjects,
			},
		}
		if err := tx.Create(&school).Error; err != nil {
			return err
		}

		joined := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
		demo := []struct{ name, email, dept, subject string }{
			{"Alice Johnson", "alice@demo.school", "Mathematics", "Mathematics"},
			{"Brian Smith", "brian@demo.school", "Science", "Physics"},
		}
		for i, t := range demo {
			u := models.User{
				Email:         t.email,
				Password:      hash,
				Role:          models.RoleTeacher,
				SchoolID:      schoolID,
				EmailVerified: true,
				Status:        models.StatusActive,
				CreatedBy:     principal.ID,
			}
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
			teacher := models.Teacher{
				UserID:   u.ID,
				SchoolID: schoolID,
				Personal: models.PersonalInfo{FullName: t.name, Email: t.email},
				Professional: models.ProfessionalInfo{
					EmployeeID:     "EMP00" + string(rune('1'+i)),
					Department:     t.dept,
					Subjects:       models.StringList{t.subject},
					GradeLevels:    models.StringList{"Grade 9", "Grade 10"},
					JoiningDate:    &joined,
					Qualifications: models.StringList{},
				},
				CreatedBy: principal.ID,
			}
			if err := tx.Create(&teacher).Error; err != nil {
				return err
			}
		}
		log.Printf("Seeded demo school %s", schoolID)
		return nil
	})
}
