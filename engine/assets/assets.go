package assets

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/asteroids/engine/assets/loaders"
	"github.com/spaghettifunk/asteroids/engine/core"
)

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// AssetManager indexes the files below the asset root, keeps the index
// current while files change and loads assets through the loader registered
// for their type.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
	watches  map[string][]*watch
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "asset watcher")
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[AssetType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		watches:  make(map[string][]*watch),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	root, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	am.root = root

	am.wg.Add(1)
	go am.start()

	if err := am.addRecursive(root); err != nil {
		return errors.Wrapf(err, "indexing assets in %s", root)
	}

	// Register loaders
	am.registerLoader(AssetTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(AssetTypeImage, &loaders.TextureLoader{})
	am.registerLoader(AssetTypeBitmapFont, &loaders.BitmapFontLoader{})
	am.registerLoader(AssetTypeSystemFont, &loaders.SystemFontLoader{})

	am.mutex.RLock()
	core.LogInfo("asset manager indexed %d files in %s", len(am.assets), root)
	am.mutex.RUnlock()
	return nil
}

func (am *AssetManager) Root() string {
	return am.root
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	return am.watchRecursive(name, false)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// Has reports whether the asset name of type t is present on disk.
func (am *AssetManager) Has(name string, t AssetType) bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	_, ok := am.assets[am.path(name, t)]
	return ok
}

func (am *AssetManager) path(name string, t AssetType) string {
	return filepath.Join(am.root, t.directory(), name)
}

// LoadAsset loads name, a file name relative to the directory of its type.
func (am *AssetManager) LoadAsset(name string, assetType AssetType, params interface{}) (*Resource, error) {
	path := am.path(name, assetType)

	am.mutex.Lock()
	asset, exists := am.assets[path]
	if exists {
		asset.LastLoaded = time.Now()
		am.assets[path] = asset
	}
	am.mutex.Unlock()
	if !exists {
		return nil, errors.Newf("asset not found: %s", path)
	}
	if asset.Type != assetType {
		return nil, errors.Newf("asset %s is a %s, not a %s", path, asset.Type, assetType)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, errors.Newf("no loader registered for asset type: %s", asset.Type)
	}

	data, err := loader.Load(path, params)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s %s", assetType, name)
	}
	core.LogDebug("loaded %s %s", assetType, name)
	return &Resource{
		Name:     name,
		FullPath: path,
		Type:     assetType,
		Data:     data,
	}, nil
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 && am.inRoot(e.Name) {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("watching %s: %v", e.Name, err)
					}
				}
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 && am.inRoot(e.Name) {
				am.handleFileEvent(e.Name)
			}
			// A removed path cannot be stat'ed, so it is dropped from both the
			// index and the watch list without knowing what it was.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				_ = am.fsnotify.Remove(e.Name)
			}
			am.notify(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %v", err)

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) inRoot(path string) bool {
	return path == am.root || strings.HasPrefix(path, am.root+string(filepath.Separator))
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found. A file created before its directory's watch
// is in place is still picked up by the walk.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path: path,
		Type: assetType,
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

// Shutdown stops the watcher. Pending reload callbacks are dropped.
func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	for _, ws := range am.watches {
		for _, w := range ws {
			w.stop()
		}
	}
	am.watches = nil
	am.mutex.Unlock()

	close(am.done)
	err := am.fsnotify.Close()
	am.wg.Wait()
	return err
}
