package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
)

// sampleSeed keeps the generated sample data identical across runs.
const sampleSeed = 20240101

var sampleSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		student_id INTEGER PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT UNIQUE,
		phone TEXT,
		date_of_birth DATE,
		enrollment_date DATE,
		gpa REAL,
		major TEXT,
		year_level INTEGER,
		status TEXT DEFAULT 'Active',
		address TEXT,
		city TEXT,
		state TEXT,
		zip_code TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		course_id INTEGER PRIMARY KEY,
		course_code TEXT UNIQUE NOT NULL,
		course_name TEXT NOT NULL,
		department TEXT,
		credits INTEGER,
		instructor_id INTEGER,
		semester TEXT,
		year INTEGER,
		capacity INTEGER,
		enrolled_count INTEGER DEFAULT 0,
		course_fee REAL
	)`,
	`CREATE TABLE IF NOT EXISTS instructors (
		instructor_id INTEGER PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT UNIQUE,
		department TEXT,
		hire_date DATE,
		salary REAL,
		office_location TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		enrollment_id INTEGER PRIMARY KEY,
		student_id INTEGER,
		course_id INTEGER,
		enrollment_date DATE,
		grade TEXT,
		points REAL,
		status TEXT DEFAULT 'Enrolled',
		FOREIGN KEY (student_id) REFERENCES students (student_id),
		FOREIGN KEY (course_id) REFERENCES courses (course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		payment_id INTEGER PRIMARY KEY,
		student_id INTEGER,
		amount REAL,
		payment_date DATE,
		payment_method TEXT,
		semester TEXT,
		year INTEGER,
		status TEXT DEFAULT 'Completed',
		FOREIGN KEY (student_id) REFERENCES students (student_id)
	)`,
}

// SampleTables lists the tables created by EnsureSampleDatabase
var SampleTables = []string{"courses", "enrollments", "instructors", "payments", "students"}

// EnsureSampleDatabase creates the university sample database at path unless
// it already holds students.
func EnsureSampleDatabase(ctx context.Context, path string) error {
	sqlDB, err := sql.Open("sqlite3", sqliteDSN(path, "rwc"))
	if err != nil {
		return fmt.Errorf("failed to open sample database: %w", err)
	}
	defer sqlDB.Close()
	configurePool(sqlDB, DatabaseTypeSQLite, DefaultOptions())

	db := &Database{db: sqlDB, dbType: DatabaseTypeSQLite, dialect: dialectFor(DatabaseTypeSQLite)}

	for _, stmt := range sampleSchema {
		if _, err := db.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create sample schema: %w", err)
		}
	}

	if n, err := db.QueryInt(ctx, "SELECT COUNT(*) FROM students"); err == nil && n > 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(sampleSeed))
	err = db.WithTx(ctx, func(tx *Transaction) error {
		for _, t := range sampleData(rng) {
			if _, err := tx.BatchInsert(ctx, "INSERT OR REPLACE", t.table, t.columns, t.rows); err != nil {
				return fmt.Errorf("failed to seed %s: %w", t.table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil {
		log.Printf("🎓 Sample database ready at %s (%d bytes)", path, info.Size())
	}
	return nil
}

type seedTable struct {
	table   string
	columns []string
	rows    [][]interface{}
}

func sampleData(rng *rand.Rand) []seedTable {
	pick := func(xs []string) string { return xs[rng.Intn(len(xs))] }
	between := func(lo, hi int) int { return lo + rng.Intn(hi-lo+1) }
	date := func(y, m, d int) string { return fmt.Sprintf("%04d-%02d-%02d", y, m, d) }

	instructors := seedTable{
		table:   "instructors",
		columns: []string{"instructor_id", "first_name", "last_name", "email", "department", "hire_date", "salary", "office_location"},
		rows: [][]interface{}{
			{1, "Dr. Sarah", "Johnson", "sarah.johnson@university.edu", "Computer Science", "2018-08-15", 75000.0, "CS-201"},
			{2, "Prof. Michael", "Brown", "michael.brown@university.edu", "Mathematics", "2015-01-10", 68000.0, "MATH-105"},
			{3, "Dr. Emily", "Davis", "emily.davis@university.edu", "Physics", "2019-09-01", 72000.0, "PHYS-301"},
			{4, "Prof. James", "Wilson", "james.wilson@university.edu", "Chemistry", "2016-03-20", 70000.0, "CHEM-202"},
			{5, "Dr. Lisa", "Anderson", "lisa.anderson@university.edu", "English", "2017-08-25", 65000.0, "ENG-101"},
		},
	}

	majors := []string{"Computer Science", "Mathematics", "Physics", "Chemistry", "English", "Biology", "Economics", "Psychology"}
	states := []string{"CA", "NY", "TX", "FL", "IL", "PA", "OH", "GA", "NC", "MI"}
	firstNames := []string{"Alice", "Bob", "Carol", "David", "Eve", "Frank", "Grace", "Henry", "Iris", "Jack"}
	lastNames := []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
	streets := []string{"Main", "Oak", "Pine", "Elm"}
	cities := []string{"Springfield", "Riverside", "Franklin", "Georgetown", "Madison"}

	students := seedTable{
		table: "students",
		columns: []string{"student_id", "first_name", "last_name", "email", "phone", "date_of_birth", "enrollment_date",
			"gpa", "major", "year_level", "status", "address", "city", "state", "zip_code"},
	}
	for i := 1; i <= 50; i++ {
		first := fmt.Sprintf("%s%d", pick(firstNames), i)
		last := pick(lastNames)
		gpa := math.Round((2.0+rng.Float64()*2.0)*100) / 100
		students.rows = append(students.rows, []interface{}{
			i, first, last,
			fmt.Sprintf("%s.%s@student.edu", strings.ToLower(first), strings.ToLower(last)),
			fmt.Sprintf("555-%d-%d", between(100, 999), between(1000, 9999)),
			date(2000+between(-2, 2), between(1, 12), between(1, 28)),
			date(2020+between(0, 4), []int{1, 8}[rng.Intn(2)], between(15, 30)),
			gpa, pick(majors), between(1, 4), "Active",
			fmt.Sprintf("%d %s St", between(100, 9999), pick(streets)),
			pick(cities), pick(states), fmt.Sprintf("%d", between(10000, 99999)),
		})
	}

	courses := seedTable{
		table:   "courses",
		columns: []string{"course_id", "course_code", "course_name", "department", "credits", "instructor_id", "semester", "year", "capacity", "enrolled_count", "course_fee"},
		rows: [][]interface{}{
			{1, "CS101", "Introduction to Programming", "Computer Science", 3, 1, "Fall", 2024, 30, 25, 1200.0},
			{2, "MATH201", "Calculus II", "Mathematics", 4, 2, "Fall", 2024, 25, 20, 800.0},
			{3, "PHYS301", "Quantum Physics", "Physics", 3, 3, "Spring", 2024, 20, 15, 1000.0},
			{4, "CHEM202", "Organic Chemistry", "Chemistry", 4, 4, "Fall", 2024, 28, 22, 1100.0},
			{5, "ENG101", "English Composition", "English", 3, 5, "Fall", 2024, 35, 30, 600.0},
			{6, "CS301", "Data Structures", "Computer Science", 3, 1, "Spring", 2024, 25, 18, 1200.0},
			{7, "MATH301", "Linear Algebra", "Mathematics", 3, 2, "Spring", 2024, 20, 16, 800.0},
			{8, "PHYS201", "Classical Mechanics", "Physics", 4, 3, "Fall", 2024, 22, 19, 1000.0},
		},
	}

	grades := []string{"A", "A-", "B+", "B", "B-", "C+", "C", "C-", "D+", "D"}
	gradePoints := map[string]float64{"A": 4.0, "A-": 3.7, "B+": 3.3, "B": 3.0, "B-": 2.7, "C+": 2.3, "C": 2.0, "C-": 1.7, "D+": 1.3, "D": 1.0}

	enrollments := seedTable{
		table:   "enrollments",
		columns: []string{"enrollment_id", "student_id", "course_id", "enrollment_date", "grade", "points", "status"},
	}
	id := 1
	for student := 1; student <= 50; student++ {
		for _, course := range rng.Perm(8)[:between(3, 5)] {
			grade := pick(grades)
			enrollments.rows = append(enrollments.rows, []interface{}{
				id, student, course + 1,
				date(2024, []int{1, 8}[rng.Intn(2)], between(10, 20)),
				grade, gradePoints[grade], "Completed",
			})
			id++
		}
	}

	methods := []string{"Credit Card", "Bank Transfer", "Cash", "Check", "Financial Aid"}
	semesters := []string{"Fall", "Spring", "Summer"}
	payments := seedTable{
		table:   "payments",
		columns: []string{"payment_id", "student_id", "amount", "payment_date", "payment_method", "semester", "year", "status"},
	}
	for i := 0; i < 50; i++ {
		n := between(2, 4)
		for j := 0; j < n; j++ {
			payments.rows = append(payments.rows, []interface{}{
				i*4 + j + 1, i + 1,
				math.Round((500+rng.Float64()*1500)*100) / 100,
				date(2024, between(1, 12), between(1, 28)),
				pick(methods), pick(semesters), 2024, "Completed",
			})
		}
	}

	return []seedTable{instructors, students, courses, enrollments, payments}
}
