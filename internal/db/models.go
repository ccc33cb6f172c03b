// Package db provides SQLite persistence for case records.
package db

const schema = `
CREATE TABLE IF NOT EXISTS cases (
	id TEXT PRIMARY KEY,
	audioReference TEXT NOT NULL DEFAULT '',
	transcription TEXT NOT NULL DEFAULT '',
	specialty TEXT NOT NULL DEFAULT '',
	caseType TEXT NOT NULL DEFAULT '',
	complexity TEXT NOT NULL DEFAULT '',
	patientAgeRange TEXT NOT NULL DEFAULT '',
	patientGender TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	keyFindings TEXT NOT NULL DEFAULT '[]',
	differentialDiagnosis TEXT NOT NULL DEFAULT '[]',
	learningPoints TEXT NOT NULL DEFAULT '[]',
	tags TEXT NOT NULL DEFAULT '[]',
	notes TEXT NOT NULL DEFAULT '',
	isFavorite INTEGER NOT NULL DEFAULT 0,
	createdAt INTEGER NOT NULL,
	updatedAt INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_created ON cases(createdAt DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_cases_specialty ON cases(specialty);
`

// caseColumns is the column list shared by every SELECT, in scan order.
const caseColumns = `id, audioReference, transcription, specialty, caseType, complexity,
	patientAgeRange, patientGender, summary, keyFindings, differentialDiagnosis,
	learningPoints, tags, notes, isFavorite, createdAt, updatedAt`
