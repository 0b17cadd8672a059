// Package facecache memoizes detected source faces keyed by image identity.
package facecache
