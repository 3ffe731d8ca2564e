// Package homework proxies homework operations to the backend content service
// on behalf of an authenticated actor: listing files and folders, creating
// folders, uploading files for indexing and relaying chat turns. It also
// fetches cached study session content by key.
package homework
