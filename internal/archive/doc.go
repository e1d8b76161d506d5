// Package archive writes chat exports to local disk or to S3.
//
// An export is a JSON Lines document with one Record per buffered
// message, oldest first. The destination is named by a target string:
//
//	./export.jsonl                 local file
//	s3://bucket/exports/a.jsonl    S3 object
//
// S3 credentials are read from the standard AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN variables.
package archive
