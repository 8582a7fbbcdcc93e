package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/optionseller/internal/database"
	"github.com/rs/zerolog"
)

const (
	archivePrefix    = "optionseller-backup-"
	archiveSuffix    = ".tar.gz"
	archiveTimestamp = "2006-01-02-150405"
	metadataFilename = "backup-metadata.json"

	// MinBackupsToKeep survive rotation regardless of age
	MinBackupsToKeep = 3
)

// BackupService snapshots databases into a tar.gz archive and uploads it
type BackupService struct {
	store      ObjectStore
	databases  []*database.DB
	dataDir    string
	appVersion string
	now        func() time.Time
	log        zerolog.Logger
}

// BackupMetadata is written into every archive next to the database files
type BackupMetadata struct {
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	AppVersion string             `json:"app_version"`
	Databases  []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database file in an archive
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes one stored archive
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewBackupService creates a backup service. Staging files live under dataDir.
func NewBackupService(
	store ObjectStore,
	databases []*database.DB,
	dataDir string,
	appVersion string,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:      store,
		databases:  databases,
		dataDir:    dataDir,
		appVersion: appVersion,
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup checkpoints and copies every database, archives the
// copies with their checksums and uploads the archive.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (BackupInfo, error) {
	s.log.Info().Int("databases", len(s.databases)).Msg("Starting backup")
	started := s.now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp:  started.UTC(),
		Version:    "1",
		AppVersion: s.appVersion,
		Databases:  make([]DatabaseMetadata, 0, len(s.databases)),
	}
	files := make([]string, 0, len(s.databases)+1)

	for _, db := range s.databases {
		if err := ctx.Err(); err != nil {
			return BackupInfo{}, err
		}
		filename := db.Name() + ".db"
		target := filepath.Join(stagingDir, filename)

		if err := snapshotDatabase(ctx, db, target); err != nil {
			return BackupInfo{}, fmt.Errorf("failed to back up %s: %w", db.Name(), err)
		}

		info, err := os.Stat(target)
		if err != nil {
			return BackupInfo{}, fmt.Errorf("failed to stat %s backup: %w", db.Name(), err)
		}
		checksum, err := fileChecksum(target)
		if err != nil {
			return BackupInfo{}, fmt.Errorf("failed to checksum %s: %w", db.Name(), err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      db.Name(),
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	if err := writeMetadata(filepath.Join(stagingDir, metadataFilename), metadata); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to write metadata: %w", err)
	}
	files = append(files, metadataFilename)

	archiveName := archivePrefix + started.UTC().Format(archiveTimestamp) + archiveSuffix
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	stat, err := archive.Stat()
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := s.store.Upload(ctx, archiveName, archive); err != nil {
		return BackupInfo{}, err
	}

	s.log.Info().
		Str("archive", archiveName).
		Int64("size_bytes", stat.Size()).
		Dur("duration", s.now().Sub(started)).
		Msg("Backup uploaded")

	return BackupInfo{
		Filename:  archiveName,
		Timestamp: started.UTC().Truncate(time.Second),
		SizeBytes: stat.Size(),
	}, nil
}

// ListBackups returns stored archives, newest first. Keys that do not
// follow the archive naming scheme are ignored.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		ts, ok := parseArchiveName(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unexpected name")
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives older than retentionDays. The newest
// MinBackupsToKeep archives are never deleted; retentionDays <= 0 keeps
// everything. It returns the number of deleted archives.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if retentionDays <= 0 || len(backups) <= MinBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, b := range backups[MinBackupsToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return deleted, nil
}

func parseArchiveName(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, archivePrefix) || !strings.HasSuffix(key, archiveSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, archivePrefix), archiveSuffix)
	ts, err := time.Parse(archiveTimestamp, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// snapshotDatabase writes a consistent copy of db to target
func snapshotDatabase(ctx context.Context, db *database.DB, target string) error {
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}
	if _, err := db.Conn().ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, name := range files {
		if err := addFileToArchive(tw, filepath.Join(sourceDir, name), name); err != nil {
			out.Close()
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
	}

	// Close in order so the gzip trailer lands before the file is closed.
	if err := tw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addFileToArchive(tw *tar.Writer, path, nameInArchive string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}
