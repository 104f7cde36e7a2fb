package database

import "fmt"

func (d *Database) RunMigrations() error {
	if err := d.db.AutoMigrate(&Document{}); err != nil {
		return fmt.Errorf("failed to migrate documents table: %v", err)
	}
	return nil
}
