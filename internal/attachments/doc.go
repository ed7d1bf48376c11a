// Package attachments stores uploaded trip files and hands out time-limited
// download URLs. S3Storage is the production backend; MemoryStorage serves
// local runs and tests.
package attachments
