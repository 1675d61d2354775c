// Package catalogfile distributes the shareable reference catalog: seeding it
// from CSV, downloading a published catalog database and swapping a catalog
// file in place with a backup that is restored when the new file is unusable.
package catalogfile
